package notify

const htmlTemplates = `
{{define "details"}}<table>
<tr><td>When</td><td>{{.When}}</td></tr>
{{if .Settings.Location}}<tr><td>Where</td><td>{{.Settings.Location}}</td></tr>{{end}}
<tr><td>Name</td><td>{{.Appt.Name}}</td></tr>
{{if .Appt.Company}}<tr><td>Company</td><td>{{.Appt.Company}}</td></tr>{{end}}
</table>{{end}}
{{define "footer"}}<p>{{if .Settings.CompanyName}}{{.Settings.CompanyName}}<br>{{end}}{{if .Settings.ContactEmail}}{{.Settings.ContactEmail}}<br>{{end}}{{if .Settings.ContactPhone}}{{.Settings.ContactPhone}}{{end}}</p>{{end}}
{{define "received"}}<p>Hello {{.Appt.Name}},</p>
<p>thank you for your appointment request at {{.Event}}. We will confirm it shortly.</p>
{{template "details" .}}
<p><a href="{{.URL}}">View or cancel your appointment</a></p>
{{template "footer" .}}{{end}}
{{define "confirmed"}}<p>Hello {{.Appt.Name}},</p>
<p>your appointment at {{.Event}} is confirmed. The calendar invite is attached.</p>
{{template "details" .}}
<p><a href="{{.URL}}">View or cancel your appointment</a></p>
{{template "footer" .}}{{end}}
{{define "cancelled"}}<p>Hello {{.Appt.Name}},</p>
<p>your appointment at {{.Event}} has been cancelled.</p>
{{template "details" .}}
{{template "footer" .}}{{end}}
{{define "rejected"}}<p>Hello {{.Appt.Name}},</p>
<p>unfortunately we cannot offer you the requested appointment at {{.Event}}. Please pick another slot.</p>
{{template "details" .}}
{{template "footer" .}}{{end}}
{{define "reminder"}}<p>Hello {{.Appt.Name}},</p>
<p>this is a reminder of your appointment tomorrow at {{.Event}}.</p>
{{template "details" .}}
<p><a href="{{.URL}}">View or cancel your appointment</a></p>
{{template "footer" .}}{{end}}
{{define "admin_new"}}<p>New appointment ({{.Appt.Status}}):</p>
{{template "details" .}}
<p>Email: {{.Appt.Email}}<br>Phone: {{.Appt.Phone}}</p>
{{if .Appt.Message}}<p>{{.Appt.Message}}</p>{{end}}
<p><a href="{{.URL}}">{{.Appt.ID}}</a></p>{{end}}
{{define "admin_cancelled"}}<p>Appointment cancelled:</p>
{{template "details" .}}
<p>Email: {{.Appt.Email}}<br>Phone: {{.Appt.Phone}}</p>{{end}}
`

const textTemplates = `
{{define "details"}}When: {{.When}}
{{if .Settings.Location}}Where: {{.Settings.Location}}
{{end}}Name: {{.Appt.Name}}
{{if .Appt.Company}}Company: {{.Appt.Company}}
{{end}}{{end}}
{{define "received"}}Hello {{.Appt.Name}},

thank you for your appointment request at {{.Event}}. We will confirm it shortly.

{{template "details" .}}
Manage your appointment: {{.URL}}
{{end}}
{{define "confirmed"}}Hello {{.Appt.Name}},

your appointment at {{.Event}} is confirmed.

{{template "details" .}}
Manage your appointment: {{.URL}}
{{end}}
{{define "cancelled"}}Hello {{.Appt.Name}},

your appointment at {{.Event}} has been cancelled.

{{template "details" .}}{{end}}
{{define "rejected"}}Hello {{.Appt.Name}},

unfortunately we cannot offer you the requested appointment at {{.Event}}.

{{template "details" .}}{{end}}
{{define "reminder"}}Hello {{.Appt.Name}},

this is a reminder of your appointment tomorrow at {{.Event}}.

{{template "details" .}}
Manage your appointment: {{.URL}}
{{end}}
{{define "admin_new"}}New appointment ({{.Appt.Status}})

{{template "details" .}}Email: {{.Appt.Email}}
Phone: {{.Appt.Phone}}
{{if .Appt.Message}}Message: {{.Appt.Message}}
{{end}}{{.URL}}
{{end}}
{{define "admin_cancelled"}}Appointment cancelled

{{template "details" .}}Email: {{.Appt.Email}}
Phone: {{.Appt.Phone}}
{{end}}
`
