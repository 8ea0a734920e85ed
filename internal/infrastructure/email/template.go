// Package email delivers inactivity reminders. SMTPSender sends real mail;
// LogSender only logs and is used when SMTP is not configured.
package email

import (
	"bytes"
	"fmt"
	"html/template"
	"strconv"

	"github.com/alem-hub/cf-progress-tracker/internal/domain/student"
)

// ReminderSubject is the subject line of every reminder.
const ReminderSubject = "Coding Activity Reminder - Time to Practice!"

// ContestsURL is the call-to-action link in the reminder.
const ContestsURL = "https://codeforces.com/contests"

var reminderTemplate = template.Must(template.New("reminder").Parse(`<div style="font-family: Arial, sans-serif; max-width: 600px; margin: 0 auto;">
  <h2 style="color: #007bff;">Hi {{.Name}}!</h2>
  <p>We noticed you haven't been active on Codeforces lately. It's been a while since your last submission!</p>
  <div style="background-color: #f8f9fa; padding: 20px; border-radius: 8px; margin: 20px 0;">
    <h3 style="color: #495057; margin-top: 0;">Your Stats:</h3>
    <ul style="list-style: none; padding: 0;">
      <li><strong>Current Rating:</strong> {{.CurrentRating}}</li>
      <li><strong>Max Rating:</strong> {{.MaxRating}}</li>
      <li><strong>Codeforces Handle:</strong> {{.Handle}}</li>
    </ul>
  </div>
  <p>Remember, consistent practice is key to improving your programming skills!</p>
  <div style="text-align: center; margin: 30px 0;">
    <a href="{{.Link}}" style="background-color: #007bff; color: white; padding: 12px 24px; text-decoration: none; border-radius: 5px; display: inline-block;">Start Solving Problems</a>
  </div>
  <p style="color: #6c757d; font-size: 14px;">Keep coding and keep growing!<br>Student Progress Management System</p>
</div>
`))

type reminderView struct {
	Name          string
	CurrentRating string
	MaxRating     string
	Handle        string
	Link          string
}

// RenderReminder renders the HTML body for one student.
func RenderReminder(p student.ReminderProfile) (string, error) {
	var buf bytes.Buffer
	err := reminderTemplate.Execute(&buf, reminderView{
		Name:          p.Name,
		CurrentRating: ratingLabel(p.CurrentRating),
		MaxRating:     ratingLabel(p.MaxRating),
		Handle:        p.Handle,
		Link:          ContestsURL,
	})
	if err != nil {
		return "", fmt.Errorf("email: render reminder: %w", err)
	}
	return buf.String(), nil
}

// ratingLabel shows 0 as "Unrated".
func ratingLabel(r int) string {
	if r == 0 {
		return "Unrated"
	}
	return strconv.Itoa(r)
}
