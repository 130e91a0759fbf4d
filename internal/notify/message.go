// Package notify delivers lending notifications by email outside the
// request path.
package notify

import (
	"bytes"
	"fmt"
	"text/template"

	"github.com/google/uuid"

	"github.com/prn-tf/alexander-library/internal/domain"
)

// Kind identifies the event a message was built for.
type Kind string

const (
	// KindReservationCreated confirms a new reservation.
	KindReservationCreated Kind = "reservation_created"

	// KindDueReminder reminds a user of an upcoming due date.
	KindDueReminder Kind = "due_reminder"
)

// dateLayout renders dates as "Mar 03, 2025".
const dateLayout = "Jan 02, 2006"

// Message is a rendered email ready for delivery.
type Message struct {
	ID      string
	Kind    Kind
	To      string
	Subject string
	Body    string
}

type messageData struct {
	Name            string
	Title           string
	Author          string
	ISBN            string
	ReservationDate string
	DueDate         string
}

var (
	confirmationTmpl = template.Must(template.New("confirmation").Parse(`Dear {{.Name}},

Your book reservation has been confirmed!

Book Details:
- Title: {{.Title}}
- Author: {{.Author}}
- ISBN: {{.ISBN}}

Reservation Details:
- Reservation Date: {{.ReservationDate}}
- Due Date: {{.DueDate}}

Please return the book on or before the due date to avoid any penalties.

Thank you for using our library!

Best regards,
Library Management System
`))

	reminderTmpl = template.Must(template.New("reminder").Parse(`Dear {{.Name}},

This is a reminder that your reserved book is due soon.

Book Details:
- Title: {{.Title}}
- Author: {{.Author}}

Reservation Details:
- Reservation Date: {{.ReservationDate}}
- Due Date: {{.DueDate}}

Please return the book on or before the due date to avoid any penalties.

Thank you!

Best regards,
Library Management System
`))
)

// BuildMessage renders the message of the given kind for a reservation.
func BuildMessage(kind Kind, user *domain.User, book *domain.Book, res *domain.Reservation) (Message, error) {
	var (
		tmpl    *template.Template
		subject string
	)
	switch kind {
	case KindReservationCreated:
		tmpl, subject = confirmationTmpl, "Book Reservation Confirmation - "+book.Title
	case KindDueReminder:
		tmpl, subject = reminderTmpl, "Return Reminder - "+book.Title
	default:
		return Message{}, fmt.Errorf("unknown message kind %q", kind)
	}

	isbn := book.ISBNValue()
	if isbn == "" {
		isbn = "N/A"
	}

	var body bytes.Buffer
	err := tmpl.Execute(&body, messageData{
		Name:            user.DisplayName(),
		Title:           book.Title,
		Author:          book.Author,
		ISBN:            isbn,
		ReservationDate: res.ReservationDate.Format(dateLayout),
		DueDate:         res.DueDate.Format(dateLayout),
	})
	if err != nil {
		return Message{}, fmt.Errorf("render %s: %w", kind, err)
	}

	return Message{
		ID:      uuid.NewString(),
		Kind:    kind,
		To:      user.Email,
		Subject: subject,
		Body:    body.String(),
	}, nil
}
