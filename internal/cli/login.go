package cli

import (
	"github.com/guiyumin/biliget/internal/cli/login"
)

func init() {
	rootCmd.AddCommand(login.Cmd())
	rootCmd.AddCommand(login.LogoutCmd())
}
