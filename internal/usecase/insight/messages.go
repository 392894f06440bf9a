package insight

import "langcard-insight/internal/domain/entity"

// UnknownErrorMessage is shown for errors outside the insight taxonomy.
const UnknownErrorMessage = "An unknown AI error occurred. Please try again."

var userMessages = map[entity.ErrorKind]string{
	entity.KindInvalidText:        "Please select some text before asking for an insight.",
	entity.KindTextTooLong:        "The selection is too long. Please select at most 1000 characters.",
	entity.KindMissingContext:     "The note could not be read. Please reopen the note and try again.",
	entity.KindBackendError:       "The AI service had a problem answering. Please try again in a moment.",
	entity.KindMaxRetriesExceeded: "The AI service is not responding right now. Please try again later.",
}

// UserMessage maps err to the message shown in the extension UI.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	if msg, ok := userMessages[entity.KindOf(err)]; ok {
		return msg
	}
	return UnknownErrorMessage
}
