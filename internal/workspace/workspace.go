package workspace

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/slok/aihq/internal/log"
	"github.com/slok/aihq/internal/model"
)

// Author is the git identity used on commits.
type Author struct {
	Name  string
	Email string
}

// DefaultAuthor is the commit author used when none is set.
var DefaultAuthor = Author{
	Name:  "AI-HQ",
	Email: "ai-hq@example.com",
}

// Manager manages the local working copies of project repositories.
type Manager interface {
	// Acquire returns the path of an up to date working copy of the repository branch.
	Acquire(ctx context.Context, owner, repo, branch string) (path string, err error)
	// ReadFile returns the content of a workspace file.
	ReadFile(path, rel string) (string, error)
	// WriteFile writes a workspace file creating its parent directories.
	WriteFile(path, rel, content string) error
	// ListFiles returns the sorted workspace relative paths of the files under subdir.
	ListFiles(path, subdir string) ([]string, error)
	// Commit stages every change and commits it, returns model.ErrNothingToCommit
	// when the working tree is clean.
	Commit(ctx context.Context, path, message string, author Author) error
	// Push pushes the branch to the origin remote.
	Push(ctx context.Context, path, branch string) error
}

// CloneURLResolver returns the clone URL of a repository.
type CloneURLResolver interface {
	CloneURL(ctx context.Context, owner, repo string) (string, error)
}

// CloneURLResolverFunc is a helper to use functions as CloneURLResolver.
type CloneURLResolverFunc func(ctx context.Context, owner, repo string) (string, error)

func (f CloneURLResolverFunc) CloneURL(ctx context.Context, owner, repo string) (string, error) {
	return f(ctx, owner, repo)
}

// DefaultSkipDirs are the directory names never listed.
var DefaultSkipDirs = []string{
	".git",
	"node_modules",
	"vendor",
	".venv",
	"venv",
	"__pycache__",
	".next",
	"dist",
	"build",
	".cache",
}

// GitManagerConfig is the configuration of the git CLI workspace manager.
type GitManagerConfig struct {
	ReposDir string
	// Token is injected in HTTPS clone URLs and redacted from errors.
	Token    string
	Resolver CloneURLResolver
	GitBin   string
	SkipDirs []string
	// ExcludePatterns are doublestar globs of workspace relative paths not listed.
	ExcludePatterns []string
	Logger          log.Logger
}

func (c *GitManagerConfig) defaults() error {
	if c.ReposDir == "" {
		return fmt.Errorf("repos dir is required")
	}

	if c.Resolver == nil {
		c.Resolver = CloneURLResolverFunc(func(_ context.Context, owner, repo string) (string, error) {
			return fmt.Sprintf("https://github.com/%s/%s.git", owner, repo), nil
		})
	}

	if c.GitBin == "" {
		c.GitBin = "git"
	}

	if c.SkipDirs == nil {
		c.SkipDirs = DefaultSkipDirs
	}

	for _, p := range c.ExcludePatterns {
		if !doublestar.ValidatePattern(p) {
			return fmt.Errorf("invalid exclude pattern %q", p)
		}
	}

	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "workspace.GitManager"})

	return nil
}

// GitManager is a Manager that uses the git CLI.
type GitManager struct {
	reposDir        string
	token           string
	resolver        CloneURLResolver
	gitBin          string
	skipDirs        map[string]struct{}
	excludePatterns []string
	logger          log.Logger
}

// NewGitManager returns a new git workspace manager.
func NewGitManager(cfg GitManagerConfig) (*GitManager, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	skip := make(map[string]struct{}, len(cfg.SkipDirs))
	for _, d := range cfg.SkipDirs {
		skip[d] = struct{}{}
	}

	return &GitManager{
		reposDir:        cfg.ReposDir,
		token:           cfg.Token,
		resolver:        cfg.Resolver,
		gitBin:          cfg.GitBin,
		skipDirs:        skip,
		excludePatterns: cfg.ExcludePatterns,
		logger:          cfg.Logger,
	}, nil
}

// Acquire clones the repository the first time, the next times it's updated.
// Every repository has its own <repos-dir>/<owner>/<repo> working copy.
func (m *GitManager) Acquire(ctx context.Context, owner, repo, branch string) (string, error) {
	if err := validateRepoPart(owner); err != nil {
		return "", err
	}
	if err := validateRepoPart(repo); err != nil {
		return "", err
	}
	if branch == "" {
		branch = model.DefaultBranch
	}

	path := filepath.Join(m.reposDir, owner, repo)
	logger := m.logger.WithValues(log.Kv{"repo": owner + "/" + repo, "branch": branch})

	cloneURL, err := m.resolver.CloneURL(ctx, owner, repo)
	if err != nil {
		return "", &model.WorkspaceError{Op: "resolve", Err: fmt.Errorf("could not resolve clone URL: %w", err)}
	}

	if _, err := os.Stat(filepath.Join(path, ".git")); err == nil {
		ok, err := m.sameOrigin(ctx, path, cloneURL)
		if err != nil {
			return "", err
		}

		if ok {
			logger.Debugf("Updating existing workspace")
			if err := m.update(ctx, path, branch); err != nil {
				return "", err
			}
			return path, nil
		}

		logger.Warningf("Workspace origin doesn't match the repository, cloning again")
	}

	logger.Debugf("Cloning workspace")
	if err := m.clone(ctx, path, cloneURL, branch); err != nil {
		return "", err
	}

	return path, nil
}

// sameOrigin checks the workspace origin remote is the repository clone URL.
func (m *GitManager) sameOrigin(ctx context.Context, path, cloneURL string) (bool, error) {
	out, err := m.git(ctx, path, "remote", "get-url", "origin")
	if err != nil {
		// A working copy without origin can't be updated, it's cloned again.
		if strings.Contains(out, "No such remote") {
			return false, nil
		}
		return false, &model.WorkspaceError{Op: "remote", Err: err}
	}

	// Git output is redacted, compare both URLs redacted.
	return strings.TrimSpace(out) == m.redact(m.authURL(cloneURL)), nil
}

func (m *GitManager) clone(ctx context.Context, path, cloneURL, branch string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return &model.WorkspaceError{Op: "clone", Err: err}
	}

	// A leftover of a previous failed clone (or another repository) would make the clone fail.
	if err := os.RemoveAll(path); err != nil {
		return &model.WorkspaceError{Op: "clone", Err: err}
	}

	if _, err := m.git(ctx, "", "clone", m.authURL(cloneURL), path); err != nil {
		_ = os.RemoveAll(path)
		return &model.WorkspaceError{Op: "clone", Err: err}
	}

	if _, err := m.git(ctx, path, "checkout", branch); err != nil {
		return &model.WorkspaceError{Op: "checkout", Err: err}
	}

	return nil
}

// update leaves the working copy exactly as the remote branch, local commits of
// previous executions (e.g. rejected pushes) are discarded.
func (m *GitManager) update(ctx context.Context, path, branch string) error {
	// Discard the leftovers of failed executions.
	if _, err := m.git(ctx, path, "reset", "--hard"); err != nil {
		return &model.WorkspaceError{Op: "reset", Err: err}
	}
	if _, err := m.git(ctx, path, "clean", "-fd"); err != nil {
		return &model.WorkspaceError{Op: "clean", Err: err}
	}

	if _, err := m.git(ctx, path, "fetch", "origin"); err != nil {
		return &model.WorkspaceError{Op: "fetch", Err: err}
	}

	if _, err := m.git(ctx, path, "checkout", branch); err != nil {
		return &model.WorkspaceError{Op: "checkout", Err: err}
	}

	if _, err := m.git(ctx, path, "reset", "--hard", "origin/"+branch); err != nil {
		return &model.WorkspaceError{Op: "reset", Err: err}
	}

	return nil
}

func (m *GitManager) ReadFile(path, rel string) (string, error) {
	full, err := resolve(path, rel)
	if err != nil {
		return "", err
	}

	data, err := os.ReadFile(full)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("file %q: %w", rel, model.ErrNotFound)
		}
		return "", fmt.Errorf("could not read file %q: %w", rel, err)
	}

	return string(data), nil
}

// WriteFile writes the file atomically, a temporary file is renamed to the target.
func (m *GitManager) WriteFile(path, rel, content string) error {
	full, err := resolve(path, rel)
	if err != nil {
		return err
	}

	dir := filepath.Dir(full)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("could not create directory: %w", err)
	}

	mode := fs.FileMode(0644)
	if st, err := os.Stat(full); err == nil {
		if st.IsDir() {
			return fmt.Errorf("%q is a directory: %w", rel, model.ErrNotValid)
		}
		mode = st.Mode().Perm()
	}

	tmp, err := os.CreateTemp(dir, ".aihq-*")
	if err != nil {
		return fmt.Errorf("could not create temp file: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := tmp.WriteString(content); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("could not write temp file: %w", err)
	}
	if err := tmp.Chmod(mode); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("could not set file mode: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("could not close temp file: %w", err)
	}

	if err := os.Rename(tmp.Name(), full); err != nil {
		return fmt.Errorf("could not move file into place: %w", err)
	}

	return nil
}

func (m *GitManager) ListFiles(path, subdir string) ([]string, error) {
	root := path
	if subdir != "" && subdir != "." {
		var err error
		root, err = resolve(path, subdir)
		if err != nil {
			return nil, err
		}
	}

	files := []string{}
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		rel, err := filepath.Rel(path, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)

		if d.IsDir() {
			if p == root {
				return nil
			}
			if _, ok := m.skipDirs[d.Name()]; ok || m.excluded(rel) {
				return filepath.SkipDir
			}
			return nil
		}

		if m.excluded(rel) {
			return nil
		}
		files = append(files, rel)
		return nil
	})
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("directory %q: %w", subdir, model.ErrNotFound)
		}
		return nil, fmt.Errorf("could not list files: %w", err)
	}

	sort.Strings(files)
	return files, nil
}

func (m *GitManager) excluded(rel string) bool {
	for _, p := range m.excludePatterns {
		if ok, _ := doublestar.Match(p, rel); ok {
			return true
		}
	}
	return false
}

func (m *GitManager) Commit(ctx context.Context, path, message string, author Author) error {
	if author == (Author{}) {
		author = DefaultAuthor
	}

	if _, err := m.git(ctx, path, "add", "-A"); err != nil {
		return &model.WorkspaceError{Op: "add", Err: err}
	}

	status, err := m.git(ctx, path, "status", "--porcelain")
	if err != nil {
		return &model.WorkspaceError{Op: "status", Err: err}
	}
	if strings.TrimSpace(status) == "" {
		return model.ErrNothingToCommit
	}

	authorID := fmt.Sprintf("%s <%s>", author.Name, author.Email)
	_, err = m.git(ctx, path,
		"-c", "user.name="+author.Name,
		"-c", "user.email="+author.Email,
		"commit", "-m", message, "--author", authorID,
	)
	if err != nil {
		return &model.WorkspaceError{Op: "commit", Err: err}
	}

	return nil
}

func (m *GitManager) Push(ctx context.Context, path, branch string) error {
	if branch == "" {
		branch = model.DefaultBranch
	}

	out, err := m.git(ctx, path, "push", "origin", branch)
	if err != nil {
		if isPushRejection(out) {
			return &model.WorkspaceError{Op: "push", Err: fmt.Errorf("%w: %s", model.ErrPushRejected, err)}
		}
		return &model.WorkspaceError{Op: "push", Err: err}
	}

	return nil
}

func isPushRejection(out string) bool {
	for _, s := range []string{"[rejected]", "non-fast-forward", "fetch first"} {
		if strings.Contains(out, s) {
			return true
		}
	}
	return false
}

// git runs a git command, the returned output and errors never contain the token.
func (m *GitManager) git(ctx context.Context, dir string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, m.gitBin, args...)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(), "GIT_TERMINAL_PROMPT=0")

	out, err := cmd.CombinedOutput()
	output := m.redact(string(out))
	if err != nil {
		return output, fmt.Errorf("git %s failed: %s: %s", m.redact(subcommand(args)), err, strings.TrimSpace(output))
	}

	return output, nil
}

func subcommand(args []string) string {
	for i := 0; i < len(args); i++ {
		if args[i] == "-c" {
			i++
			continue
		}
		return args[i]
	}
	return ""
}

func (m *GitManager) authURL(cloneURL string) string {
	if m.token == "" || !strings.HasPrefix(cloneURL, "https://") {
		return cloneURL
	}
	return strings.Replace(cloneURL, "https://", "https://"+m.token+"@", 1)
}

func (m *GitManager) redact(s string) string {
	if m.token == "" {
		return s
	}
	return strings.ReplaceAll(s, m.token, "***")
}

func validateRepoPart(s string) error {
	if s == "" || s == "." || s == ".." || strings.ContainsAny(s, `/\`) {
		return fmt.Errorf("invalid repository name part %q: %w", s, model.ErrNotValid)
	}
	return nil
}

// resolve returns the absolute path of a workspace relative path, paths
// escaping the workspace are rejected, symlinks included.
func resolve(root, rel string) (string, error) {
	if err := model.ValidateRelPath(rel); err != nil {
		return "", err
	}

	absRoot, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("invalid workspace path: %w", err)
	}

	full := filepath.Join(absRoot, rel)
	if !within(absRoot, full) {
		return "", fmt.Errorf("file path %q escapes the workspace: %w", rel, model.ErrNotValid)
	}

	realRoot, err := filepath.EvalSymlinks(absRoot)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return full, nil
		}
		return "", fmt.Errorf("invalid workspace path: %w", err)
	}

	// Check where the deepest existing part of the path really is.
	existing := full
	for existing != absRoot {
		if _, err := os.Lstat(existing); err == nil {
			break
		}
		existing = filepath.Dir(existing)
	}

	realPath, err := filepath.EvalSymlinks(existing)
	if err != nil {
		return "", fmt.Errorf("file path %q can't be resolved: %w", rel, model.ErrNotValid)
	}
	if !within(realRoot, realPath) {
		return "", fmt.Errorf("file path %q escapes the workspace through a symlink: %w", rel, model.ErrNotValid)
	}

	return full, nil
}

func within(root, p string) bool {
	return p == root || strings.HasPrefix(p, root+string(filepath.Separator))
}

var _ Manager = &GitManager{}
