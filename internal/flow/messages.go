package flow

import (
	"fmt"
	"strings"

	"github.com/obenan/reviewbridge/internal/analytics"
)

// Recognized global commands. Matching is case-insensitive on trimmed
// input.
const (
	CommandReset     = "obenan"
	CommandHello     = "hello"
	CommandHi        = "hi"
	CommandClear     = "clear"
	CommandBye       = "bye"
	CommandHelp      = "help"
	CommandOrgPrefix = "org lpq"
)

// Inputs that close the review-question loop.
const (
	answerNo   = "no"
	answerStop = "stop"
)

// selectAllToken selects every catalog entry when it appears anywhere in a
// selection input.
const selectAllToken = "9"

// Static conversation texts.
const (
	MsgWelcome = "*Welcome to Organization Assistant* 🤖\n\nHow can I help you today?\n\n*Available Commands:*\n1. *org <orgname>* - View organization options\n2. *help* - Show all commands"

	MsgGreeting = "👋 Hello! How can I assist you today? Type *help* to see available commands."

	MsgCleared = "🔄 Session cleared! You can start fresh now."

	MsgFarewell = "👋 Goodbye! Have a great day! Type *hello* or *hi* when you want to chat again."

	MsgHelp = "*Available Commands:*\n\n" +
		"1. *org lpq* - Start review analysis for Le Pain Quotidien\n" +
		"2. *clear* - Reset your current session\n" +
		"3. *help* - Show this help message\n" +
		"4. *hello* or *hi* - Start interaction\n" +
		"5. *bye* - End conversation\n\n" +
		"Example: org lpq"

	MsgFallback = "❓ I didn't understand that command. Here are some things you can try:\n\n" +
		"• Type *hello* or *hi* to start\n" +
		"• Type *help* to see all commands\n" +
		"• Type *org lpq* to start selecting locations\n" +
		"• Type *clear* to reset your session\n" +
		"• Type *bye* to end the conversation"

	MsgInvalidLocations = "❌ Invalid selection. Please enter valid location numbers separated by commas (e.g., 1,3,4) or 9 for all locations"

	MsgInvalidSources = "❌ Invalid selection. Please enter valid source numbers separated by commas (e.g., 1,3,4) or 9 for all sources"

	MsgQuestionPrompt = "❓ What would you like to know about these reviews? (e.g., \"When was the last review posted?\" or \"What is the average rating?\")"

	MsgWorking = "🔄 Analyzing reviews, please wait..."

	MsgContinuation = "\n🤔 Would you like to ask another question about the reviews?\n\n• Ask your question directly\n• Type *no* to finish\n• Type *clear* to start over"

	MsgClosing = "👋 Thank you for using our review analysis service. Type *obenan* anytime to start again!"

	MsgRestartHint = "\n\nType *org lpq* to try again."

	MsgRetryHint = "\n\nYou can try asking your question again, or type *clear* to start over."
)

// LocationMenu builds the numbered location selection menu.
func LocationMenu(names []string) string {
	return fmt.Sprintf("Please select locations (enter numbers separated by commas):\n\n%s\n\n9. Select All Locations", numberedList(names))
}

// SourceMenu builds the numbered review source selection menu.
func SourceMenu(names []string) string {
	return fmt.Sprintf("Please select review sources (enter numbers separated by commas):\n\n%s\n\n9. Select All Sources", numberedList(names))
}

// SelectionSummary lists the chosen locations and sources in selection
// order.
func SelectionSummary(locations, sources []string) string {
	return fmt.Sprintf("*Selected Options:*\n\n*Locations:*\n%s\n\n*Sources:*\n%s", numberedList(locations), numberedList(sources))
}

// AnalysisResult wraps the provider's answer text.
func AnalysisResult(answer string) string {
	return fmt.Sprintf("*Analysis Result:*\n\n%s", answer)
}

func numberedList(items []string) string {
	lines := make([]string, len(items))
	for i, item := range items {
		lines[i] = fmt.Sprintf("%d. %s", i+1, item)
	}
	return strings.Join(lines, "\n")
}

// analysisErrorText maps an analytics error kind to its user-facing
// message.
func analysisErrorText(kind analytics.ErrorKind) string {
	switch kind {
	case analytics.KindServiceUnreachable:
		return "❌ Could not connect to the review analyzer service. Please try again later."
	case analytics.KindServiceTimeout:
		return "❌ The review analysis service is taking too long to respond. Please try again."
	case analytics.KindServiceNotFound:
		return "❌ The review analyzer service endpoint was not found. Please try again later."
	case analytics.KindServiceDenied:
		return "❌ Access to the review analyzer service was denied. Please try again later."
	case analytics.KindMissingLocations:
		return "❌ Please select valid locations before analyzing reviews."
	case analytics.KindMissingSources:
		return "❌ Please select valid review sources after selecting locations."
	default:
		return "❌ Sorry, there was an error analyzing the reviews."
	}
}
