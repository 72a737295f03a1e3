// Package ansible shells out to the playbook tooling. Playbooks, vault and
// ssh-keygen are opaque external tools here; this package only prepares
// their inputs and interprets their exit codes.
package ansible

import (
	"context"
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"

	"github.com/bmops/provisioner/internal/lg"
	"github.com/bmops/provisioner/pkg/execx"
)

type commandRunner interface {
	MustExecute(program string, args []string, env map[string]string) (*execx.CommandResult, error)
}

type streamRunner interface {
	Run(ctx context.Context, program string, args []string, env map[string]string, outputPath string) error
}

// Tools names the external binaries used by the runner.
type Tools struct {
	Playbook  string
	Vault     string
	SSHKeygen string
}

// Runner drives playbook executions and their supporting tools. Playbook
// output streams to a log file because runs are long and chatty.
type Runner struct {
	cmd    commandRunner
	stream streamRunner
	log    lg.Logger
	tools  Tools
}

func NewRunner(cmd commandRunner, stream streamRunner, log lg.Logger, tools Tools) *Runner {
	return &Runner{cmd: cmd, stream: stream, log: log, tools: tools}
}

// RunPlaybook executes one playbook against an inventory file, streaming
// all output to logPath.
func (r *Runner) RunPlaybook(ctx context.Context, playbook, inventory, logPath string, extraEnv map[string]string) error {
	r.log.Info("running playbook",
		lg.String("playbook", playbook),
		lg.String("inventory", inventory),
		lg.String("log", logPath))
	args := []string{"-i", inventory, playbook}
	return r.stream.Run(ctx, r.tools.Playbook, args, extraEnv, logPath)
}

// EncryptString vault-encrypts a value under the given variable name and
// returns the tool's YAML snippet.
func (r *Runner) EncryptString(value, name, vaultPasswordFile string) (string, error) {
	args := []string{"encrypt_string", "--vault-password-file", vaultPasswordFile, "--name", name, value}
	res, err := r.cmd.MustExecute(r.tools.Vault, args, nil)
	if err != nil {
		return "", err
	}
	return res.Stdout, nil
}

// RemoveKnownHost drops host from the ssh known_hosts file, so a
// reprovisioned machine's new host key is accepted.
func (r *Runner) RemoveKnownHost(host string) error {
	_, err := r.cmd.MustExecute(r.tools.SSHKeygen, []string{"-R", host}, nil)
	return err
}

// The YAML encoder renders a vault-encrypted value as a plain block scalar
// whose first line is "!vault |"; ansible needs the tag on the key line.
var vaultBlock = regexp.MustCompile(`\|-?\n\s*!vault \|\n`)

// WriteInventory marshals inventory or variable data to a YAML file,
// applying the vault-tag fix-up.
func WriteInventory(path string, data any) error {
	raw, err := yaml.Marshal(data)
	if err != nil {
		return fmt.Errorf("inventory %s: %w", path, err)
	}
	return os.WriteFile(path, fixVaultTags(raw), 0600)
}

func fixVaultTags(raw []byte) []byte {
	return vaultBlock.ReplaceAll(raw, []byte("!vault |\n"))
}
