package bot

import (
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// All replies are written in Telegram's legacy Markdown.
const parseMode = tgbotapi.ModeMarkdown

const (
	welcomeText      = "*Welcome!* ✨ Send a YouTube shorts link."
	helpText         = "*Shorts Bot*\n\n_This bot downloads YouTube shorts.\nSend a link to try it out!_"
	invalidLinkText  = "*Send a valid YouTube shorts link.*"
	statusText       = "Downloading..."
	connectivityText = "*Error contacting video source.*"
	timeoutText      = "*Timed out while sending the video.*\n_Please try again in a moment._"
	genericErrorText = "An error occurred."
	throttledText    = "*Slow down!*\n_Too many links, try again in a minute._"
)

func tooLargeText(limitMB int) string {
	return fmt.Sprintf("*Error sending video file.*\n_Note that videos more than %dMB are not supported._", limitMB)
}

func rejectedText(description string) string {
	return "*Telegram rejected the video:* " + escape(description)
}

func errorText(message string) string {
	return "*Error:* " + escape(message)
}

// captionText links title to url. A ")" in url would end the link early.
func captionText(title, url string) string {
	return "[" + escape(title) + "](" + strings.ReplaceAll(url, ")", "%29") + ")"
}

func escape(s string) string {
	return tgbotapi.EscapeText(parseMode, s)
}
