package bot

// Command constants for Telegram bot commands.
const (
	CommandStart     = "/start"
	CommandHelp      = "/help"
	CommandStats     = "/stats"
	CommandBroadcast = "/broadcast"
	CommandCancel    = "/cancel"
)
