package appcopy

// All user-facing bot copy lives here.

type BotCopy struct {
	Commands BotCommandsCopy
	Prompts  BotPromptsCopy
	Info     BotInfoCopy
}

type BotCommandsCopy struct {
	Start     string
	Help      string
	Stop      string
	StartDesc string
	HelpDesc  string
	StopDesc  string
}

type BotPromptsCopy struct {
	PairingPrivateOnly string
	PairingInvalid     string
	PairingSuccess     string
	PairingFailed      string
	EditsDisabled      string
	UnknownMessage     string
}

type BotInfoCopy struct {
	Welcome       string
	HelpText      string
	Unlinked      string
	NothingLinked string
	PairingCode   string
}

var Copy = BotCopy{
	Commands: BotCommandsCopy{
		Start:     "start",
		Help:      "help",
		Stop:      "stop",
		StartDesc: "Link this chat to your Ani-Notify account",
		HelpDesc:  "Show help information",
		StopDesc:  "Stop episode notifications in this chat",
	},
	Prompts: PromptsDefault(),
	Info: BotInfoCopy{
		Welcome: "👋 <b>Welcome to Ani-Notify!</b>\n\n" +
			"Send me the pairing code your administrator gave you (format <code>XXXX-XXXX</code>) " +
			"and new episodes of the titles you follow will show up here.",
		HelpText: "<b>Ani-Notify</b>\n\n" +
			"• Send a pairing code to link this chat to your account.\n" +
			"• /stop stops notifications in this chat.\n" +
			"• /help shows this message.",
		Unlinked:      "🔕 Notifications stopped. Send a new pairing code to start again.",
		NothingLinked: "This chat is not linked to any account.",
		PairingCode:   "Pairing code for %s: %s (valid until %s)",
	},
}

func PromptsDefault() BotPromptsCopy {
	return BotPromptsCopy{
		PairingPrivateOnly: "⚠️ Pairing codes can only be used in a private chat with the bot.",
		PairingInvalid:     "❌ That pairing code is invalid or expired.",
		PairingSuccess:     "✅ Linked to <b>%s</b>. New episodes will be sent here.",
		PairingFailed:      "❌ Could not link this chat right now. Please try again later.",
		EditsDisabled:      "🔒 Account changes are disabled on this server.",
		UnknownMessage:     "I did not understand that. Use /help to see what I can do.",
	}
}
