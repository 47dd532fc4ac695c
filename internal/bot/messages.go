package bot

import (
	"errors"
	"fmt"

	"audiolink/internal/transport"
)

const (
	CmdActivate   = "activate"
	CmdDeactivate = "deactivate"
)

// Commands is the menu registered with the platform.
var Commands = []transport.BotCommand{
	{Command: CmdActivate, Description: "Activate the bot to respond to audio file uploads with download links"},
	{Command: CmdDeactivate, Description: "Deactivate the bot to stop responding to audio file uploads"},
}

const (
	msgNotOwner    = "Only the server owner can use this command!"
	msgActivated   = "Bot activated! I will now respond to audio file uploads with download links."
	msgDeactivated = "Bot deactivated! I will no longer respond to audio file uploads."
	msgStarted     = "Bot started and ready to use. Use /activate to start responding to audio files."
)

func confirmText(active bool) string {
	if active {
		return msgActivated
	}
	return msgDeactivated
}

func toggledText(active bool, channel, user string) string {
	verb := "deactivated"
	if active {
		verb = "activated"
	}
	if channel == "" {
		channel = "unknown"
	}
	return fmt.Sprintf("Bot %s in channel #%s by @%s", verb, channel, user)
}

func detectedText(name string, size int64) string {
	return fmt.Sprintf("Audio file detected: %s (%s MB)", name, FormatSizeMB(size))
}

func respondedText(name string) string {
	return "Responded with download link for: " + name
}

// replyFailedText reports the platform's own message when the error came
// back from an adapter call.
func replyFailedText(name string, err error) string {
	var se *transport.SendError
	if errors.As(err, &se) && se.Err != nil {
		err = se.Err
	}
	return fmt.Sprintf("Error responding to audio file: %s. Error: %v", name, err)
}

func unsupportedText(name string) string {
	return fmt.Sprintf("Invalid file format detected: %s - Not an audio file", name)
}

// InitFailedText is the activity log message for a bot that could not connect.
func InitFailedText(err error) string {
	return fmt.Sprintf("Error initializing bot: %v", err)
}
