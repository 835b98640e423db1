package engine

// Reply texts sent back over the channel. Kept as package constants so tests
// and the dispatcher reference the exact wording.
const (
	ReplyAskName       = "Welcome! Please share your name."
	ReplyAskDistrict   = "Thank you! Please share your district."
	ReplyAskCity       = "Thanks! Now, please share your city."
	ReplyAskState      = "Great! Please share your state."
	ReplyAskDocument   = "Perfect! Finally, please share an image of your identity document."
	ReplyNeedImage     = "Please send an image of your identity document."
	ReplyNeedValidFile = "Please send a valid image file."
	ReplyCompleted     = "Thank you! Your registration is complete."
	ReplyRestarted     = "Let's start over. Please share your name."
	ReplyAlreadyDone   = `Your registration is already complete. Type "restart" to begin again.`
	ReplyUnknownState  = `Sorry, something went wrong. Type "restart" to begin again.`
)
