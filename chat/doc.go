// Package chat exposes the timekeeping flows over chat.
//
// Transports turn incoming messages into Commands and hand them to a
// Dispatcher together with a send callback:
//   - Telegram: long-polls the Bot API; each message is handled in its own
//     goroutine. Screenshot replies are uploaded as photos. The bot also
//     implements the scheduler's Notifier, messaging every allowed chat.
//   - StartTwitchListener: connects to Twitch IRC for TWITCH_CHANNEL and answers
//     "!clockin"-style messages in the channel.
//
// Every command, help included, is checked against an allowlist of
// "telegram:<chat id>" and "twitch:<login>" keys. Action commands are
// acknowledged before the browser flow starts; while another flow holds the
// account lock the acknowledgement says the request is queued.
//
// Credentials: the IRC client requires a bot username and an OAuth token with
// chat:read/chat:edit scopes. If TWITCH_OAUTH_TOKEN is not provided, main
// reuses a stored token from the oauth_tokens table for provider "twitch".
package chat
