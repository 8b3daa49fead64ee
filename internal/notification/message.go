package notification

import (
	"fmt"

	"laundry-session-backend/internal/parse"
)

// FinishMessage is the text sent when a cycle is done. The greeting is omitted without a
// first name.
func FinishMessage(loc parse.MachineLocation, firstName string) string {
	body := fmt.Sprintf("Your session is done. Please go to %s to pick up your load. "+
		"Don't forget to check your belongings and report any issues to the boarding parent.", loc)
	if firstName == "" {
		return body
	}
	return fmt.Sprintf("Hi %s, %s", firstName, body)
}

// VacancyMessage is the web push payload for a machine that became free.
func VacancyMessage(loc parse.MachineLocation) string {
	return capitalize(loc.String()) + " is now free."
}

func capitalize(s string) string {
	if s == "" || s[0] < 'a' || s[0] > 'z' {
		return s
	}
	return string(s[0]-'a'+'A') + s[1:]
}
