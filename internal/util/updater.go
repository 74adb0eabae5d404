package util

import (
	"fmt"
	"os/exec"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Updater performs git-based self-updates of a Starbridge checkout. It is
// driven by the CLI update command and only ever touches the checkout the
// proxy was started from; the running binary keeps serving until restarted.
type Updater struct {
	repoURL  string
	branch   string
	localDir string
	logger   zerolog.Logger
}

// NewUpdater creates a new updater for the given git repository.
func NewUpdater(repoURL, branch, localDir string) *Updater {
	return &Updater{
		repoURL:  repoURL,
		branch:   branch,
		localDir: localDir,
		logger:   log.With().Str("component", "updater").Logger(),
	}
}

// CheckForUpdate fetches the remote branch and reports whether the checkout
// is behind it, along with the newest commit's one-line summary.
func (u *Updater) CheckForUpdate() (bool, string, error) {
	_, err := ExecuteCommand("git", "-C", u.localDir, "fetch", "origin", u.branch)
	if err != nil {
		return false, "", fmt.Errorf("failed to fetch updates: %w", err)
	}

	localHash, err := ExecuteCommand("git", "-C", u.localDir, "rev-parse", "HEAD")
	if err != nil {
		return false, "", err
	}

	remoteHash, err := ExecuteCommand("git", "-C", u.localDir, "rev-parse",
		fmt.Sprintf("origin/%s", u.branch))
	if err != nil {
		return false, "", err
	}

	localHash = strings.TrimSpace(localHash)
	remoteHash = strings.TrimSpace(remoteHash)

	if localHash == remoteHash {
		u.logger.Debug().Str("revision", localHash).Msg("checkout is current")
		return false, "", nil
	}

	msg, _ := ExecuteCommand("git", "-C", u.localDir, "log",
		"--oneline", "-1", fmt.Sprintf("origin/%s", u.branch))
	u.logger.Info().
		Str("local", localHash).
		Str("remote", remoteHash).
		Msg("newer revision available")
	return true, strings.TrimSpace(msg), nil
}

// Update pulls the latest revision into the checkout. The new code takes
// effect on the next start.
func (u *Updater) Update() error {
	u.logger.Info().Str("branch", u.branch).Msg("pulling latest revision")

	output, err := ExecuteCommand("git", "-C", u.localDir, "pull", "origin", u.branch)
	if err != nil {
		return fmt.Errorf("failed to pull updates: %w", err)
	}

	u.logger.Info().Str("output", output).Msg("checkout updated, restart to apply")
	return nil
}

// SwitchBranch switches the checkout to a different branch.
func (u *Updater) SwitchBranch(branch string) error {
	u.logger.Info().Str("branch", branch).Msg("switching branch")

	_, err := ExecuteCommand("git", "-C", u.localDir, "checkout", branch)
	if err != nil {
		return fmt.Errorf("failed to switch branch: %w", err)
	}

	u.branch = branch
	return nil
}

// GetCurrentBranch returns the checkout's current branch.
func (u *Updater) GetCurrentBranch() (string, error) {
	branch, err := ExecuteCommand("git", "-C", u.localDir, "rev-parse", "--abbrev-ref", "HEAD")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(branch), nil
}

// GetCurrentVersion returns the checkout's short commit hash.
func (u *Updater) GetCurrentVersion() (string, error) {
	hash, err := ExecuteCommand("git", "-C", u.localDir, "rev-parse", "--short", "HEAD")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(hash), nil
}

// IsGitAvailable checks if git is installed and accessible.
func IsGitAvailable() bool {
	_, err := exec.LookPath("git")
	return err == nil
}
