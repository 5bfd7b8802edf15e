package email

import (
	"bytes"
	"fmt"
	"html/template"
)

const PasswordResetSubject = "Password Reset Request"

// PasswordResetData fills the password reset template.
type PasswordResetData struct {
	AppName   string
	Name      string
	ResetURL  string
	ExpiresIn string
}

const passwordResetTemplate = `
<!DOCTYPE html>
<html>
<head>
    <style>
        body { font-family: Arial, sans-serif; line-height: 1.6; color: #333; }
        .container { max-width: 600px; margin: 0 auto; padding: 20px; }
        .button { display: inline-block; padding: 12px 24px; background-color: #007bff; color: white; text-decoration: none; border-radius: 5px; }
        .link { word-break: break-all; color: #007bff; }
        .footer { margin-top: 30px; font-size: 12px; color: #666; }
    </style>
</head>
<body>
    <div class="container">
        <h2 style="text-align: center;">Password Reset Request</h2>
        <p>Hi {{.Name}},</p>
        <p>You requested a password reset for your {{.AppName}} account. Click the button below to reset your password:</p>
        <p style="text-align: center; margin: 30px 0;">
            <a href="{{.ResetURL}}" class="button">Reset Password</a>
        </p>
        <p>If the button doesn't work, copy and paste this link into your browser:</p>
        <p class="link">{{.ResetURL}}</p>
        <p><strong>This link will expire in {{.ExpiresIn}}.</strong></p>
        <p>If you didn't request this password reset, please ignore this email.</p>
        <hr>
        <p class="footer">This is an automated message, please do not reply to this email.</p>
    </div>
</body>
</html>
`

var passwordReset = template.Must(template.New("password-reset").Parse(passwordResetTemplate))

// RenderPasswordReset returns the HTML body of the password reset mail.
func RenderPasswordReset(data PasswordResetData) (string, error) {
	var body bytes.Buffer
	if err := passwordReset.Execute(&body, data); err != nil {
		return "", fmt.Errorf("failed to execute template: %w", err)
	}
	return body.String(), nil
}
