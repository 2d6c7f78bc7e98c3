package conversation

import "fmt"

// Fixed texts of the turn protocol.
const (
	// SummaryRequest asks the model for the user-facing summary of a turn.
	SummaryRequest = "Summarize the changes you have done in one sentence"

	// Acknowledgement replaces the summary when the summary call fails.
	Acknowledgement = "Done. I've processed your request."

	correctivePrefix = "I encountered an error with the following message, please fix it: "
	buildErrorFormat = "An error occurred during the build process: %s. \nDo you want me to fix it?"
	writeErrorFormat = "An error occurred while saving the app: %s"
)

// composeInternal returns the model-facing content of a user message. With
// inject set the schema is prepended; otherwise a bound database only labels
// the instruction.
func composeInternal(database, schema string, inject bool, text string) string {
	if schema == "" {
		return text
	}
	if inject {
		return fmt.Sprintf(
			"Here's the schema of the selected database: \n%s \nAlways prepend the database name to the table name when you generate queries (%s.<table_name>):\n%s\n\nUser instruction: %s",
			database, database, schema, text,
		)
	}
	return "User instruction: " + text
}

// correctiveContent is the internal-only turn added after a failed build.
func correctiveContent(diagnostic string) string {
	return correctivePrefix + diagnostic
}

// BuildErrorMessage formats a build diagnostic for the user.
func BuildErrorMessage(diagnostic string) string {
	return fmt.Sprintf(buildErrorFormat, diagnostic)
}

// WriteErrorMessage formats an artifact write failure for the user.
func WriteErrorMessage(err error) string {
	return fmt.Sprintf(writeErrorFormat, err)
}
