package cmds

import (
	"fmt"
	"os"

	"github.com/tcnksm/go-input"
)

func newUI() *input.UI {
	return &input.UI{
		Writer: os.Stdout,
		Reader: os.Stdin,
	}
}

func confirm(query string) (bool, error) {
	answer, err := newUI().Ask(query+" [y/n]", &input.Options{
		Default:  "n",
		Required: true,
		Loop:     true,
		ValidateFunc: func(answer string) error {
			switch answer {
			case "y", "Y", "n", "N":
				return nil
			default:
				return fmt.Errorf("please enter 'y' or 'n'")
			}
		},
	})
	if err != nil {
		return false, err
	}
	return answer == "y" || answer == "Y", nil
}
