package commands

import (
	"github.com/spf13/cobra"
)

// Completion returns the completion command for shell autocompletion.
func Completion() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "completion [bash|zsh|fish|powershell]",
		Short: "Generate shell completion scripts",
		Long: `Generate shell completion scripts for edgerun.

To load completions:

Bash:
  $ source <(edgerun completion bash)
  # To load completions for each session, execute once:
  # Linux:
  $ edgerun completion bash > /etc/bash_completion.d/edgerun
  # macOS:
  $ edgerun completion bash > $(brew --prefix)/etc/bash_completion.d/edgerun

Zsh:
  # If shell completion is not already enabled in your environment,
  # you will need to enable it. Execute the following once:
  $ echo "autoload -U compinit; compinit" >> ~/.zshrc
  # To load completions for each session, execute once:
  $ edgerun completion zsh > "${fpath[1]}/_edgerun"
  # You will need to start a new shell for this setup to take effect.

Fish:
  $ edgerun completion fish | source
  # To load completions for each session, execute once:
  $ edgerun completion fish > ~/.config/fish/completions/edgerun.fish

PowerShell:
  PS> edgerun completion powershell | Out-String | Invoke-Expression
  # To load completions for every new session, run:
  PS> edgerun completion powershell > edgerun.ps1
  # and source this file from your PowerShell profile.
`,
		DisableFlagsInUseLine: true,
		ValidArgs:             []string{"bash", "zsh", "fish", "powershell"},
		Args:                  cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			w := cmd.OutOrStdout()
			switch args[0] {
			case "bash":
				return cmd.Root().GenBashCompletionV2(w, true)
			case "zsh":
				return cmd.Root().GenZshCompletion(w)
			case "fish":
				return cmd.Root().GenFishCompletion(w, true)
			case "powershell":
				return cmd.Root().GenPowerShellCompletionWithDesc(w)
			}
			return nil
		},
	}
	return cmd
}
