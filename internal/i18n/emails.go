package i18n

import (
	"html"
	"strconv"
	"strings"
)

type EmailContent struct {
	Subject string
	Text    string
	HTML    string
}

type emailStrings struct {
	ResetCodeSubject string
	ResetCodeText    string
	ResetCodeHTML    string

	PasswordChangedSubject string
	PasswordChangedText    string
	PasswordChangedHTML    string
}

var emailTranslations = map[string]emailStrings{
	"en": {
		ResetCodeSubject: "Your password reset code",
		ResetCodeText: "Hi {username},\n\nyour password reset code is {code}. It is valid for {minutes} minutes.\n" +
			"If you did not request a reset, you can ignore this email.",
		ResetCodeHTML: "<p>Hi {username},</p>" +
			"<p>Use the code below to reset your Study Tracker password.</p>" +
			"<p style=\"font-size:24px;letter-spacing:4px\"><strong>{code}</strong></p>" +
			"<p>The code expires in {minutes} minutes.</p>" +
			"<p>If you did not request a reset, you can ignore this email.</p>",

		PasswordChangedSubject: "Your password was changed",
		PasswordChangedText:    "Hi {username},\n\nthe password for your Study Tracker account was just changed.\nIf this wasn't you, reset your password right away.",
		PasswordChangedHTML: "<p>Hi {username},</p>" +
			"<p>The password for your Study Tracker account was just changed.</p>" +
			"<p>If this wasn't you, reset your password right away.</p>",
	},
	"de": {
		ResetCodeSubject: "Dein Code zum Zurücksetzen des Passworts",
		ResetCodeText: "Hallo {username},\n\ndein Code zum Zurücksetzen des Passworts lautet {code}. Er ist {minutes} Minuten gültig.\n" +
			"Wenn du das nicht angefordert hast, kannst du diese E-Mail ignorieren.",
		ResetCodeHTML: "<p>Hallo {username},</p>" +
			"<p>Verwende den folgenden Code, um dein Study-Tracker-Passwort zurückzusetzen.</p>" +
			"<p style=\"font-size:24px;letter-spacing:4px\"><strong>{code}</strong></p>" +
			"<p>Der Code läuft in {minutes} Minuten ab.</p>" +
			"<p>Wenn du das nicht angefordert hast, kannst du diese E-Mail ignorieren.</p>",

		PasswordChangedSubject: "Dein Passwort wurde geändert",
		PasswordChangedText:    "Hallo {username},\n\ndas Passwort deines Study-Tracker-Kontos wurde soeben geändert.\nWenn du das nicht warst, setze dein Passwort sofort zurück.",
		PasswordChangedHTML: "<p>Hallo {username},</p>" +
			"<p>Das Passwort deines Study-Tracker-Kontos wurde soeben geändert.</p>" +
			"<p>Wenn du das nicht warst, setze dein Passwort sofort zurück.</p>",
	},
}

func emailStringsForLocale(locale string) emailStrings {
	normalized := NormalizeLocale(locale)
	if strs, ok := emailTranslations[normalized]; ok {
		return strs
	}
	return emailTranslations[DefaultLocale]
}

func renderTemplate(tmpl string, values map[string]string) string {
	out := tmpl
	for key, val := range values {
		out = strings.ReplaceAll(out, "{"+key+"}", val)
	}
	return out
}

func escapeValues(values map[string]string) map[string]string {
	escaped := make(map[string]string, len(values))
	for k, v := range values {
		escaped[k] = html.EscapeString(v)
	}
	return escaped
}

func PasswordResetCodeEmail(locale, username, code string, minutes int) EmailContent {
	strs := emailStringsForLocale(locale)
	values := map[string]string{
		"username": username,
		"code":     code,
		"minutes":  strconv.Itoa(minutes),
	}
	return EmailContent{
		Subject: strs.ResetCodeSubject,
		Text:    renderTemplate(strs.ResetCodeText, values),
		HTML:    renderTemplate(strs.ResetCodeHTML, escapeValues(values)),
	}
}

func PasswordChangedEmail(locale, username string) EmailContent {
	strs := emailStringsForLocale(locale)
	values := map[string]string{"username": username}
	return EmailContent{
		Subject: strs.PasswordChangedSubject,
		Text:    renderTemplate(strs.PasswordChangedText, values),
		HTML:    renderTemplate(strs.PasswordChangedHTML, escapeValues(values)),
	}
}
