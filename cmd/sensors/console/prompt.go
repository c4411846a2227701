package console

import (
	"strings"

	"github.com/chzyer/readline"
)

const (
	Yes  = "y"
	No   = "n"
	Quit = "q"
)

var yesNoQuitConstraints = []string{Yes, No, Quit}

// YesNoOrQuit defaults to Yes, so a bare Enter confirms.
func YesNoOrQuit(question string) (string, error) {
	return Prompt(question, yesNoQuitConstraints...)
}

// Declined reports whether a prompt answer ends the session.
func Declined(answer string) bool {
	return answer == No || answer == Quit
}

// Prompt reads one line. With constraints the answer is normalized to one of them,
// the first one being the default on empty or unknown input.
func Prompt(question string, constraints ...string) (string, error) {
	if len(constraints) == 0 {
		return readLine(question)
	}
	def := strings.ToUpper(constraints[0])
	var prompt strings.Builder
	prompt.WriteString(question)
	prompt.WriteString(" [")
	prompt.WriteString(def)
	for i := 1; i < len(constraints); i++ {
		prompt.WriteString("/")
		prompt.WriteString(constraints[i])
	}
	prompt.WriteString("]: ")
	response, err := readLine(prompt.String())
	if err != nil {
		return "", err
	}
	return normalize(response, constraints), nil
}

func normalize(response string, constraints []string) string {
	normalized := strings.ToLower(strings.TrimSpace(response))
	for _, c := range constraints {
		if normalized == c {
			return normalized
		}
	}
	return constraints[0]
}

func readLine(prompt string) (string, error) {
	rl, err := readline.New(prompt)
	if err != nil {
		return "", err
	}
	defer rl.Close()
	return rl.Readline()
}
