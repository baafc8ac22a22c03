package agent

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/chatvault/chatvault/internal/github"
)

// Tool names reported in Answer.ToolUsed.
const (
	toolListRepos   = "list_repos"
	toolAnalyzeRepo = "analyze_repo"
	toolYAMLFiles   = "yaml_files"
	toolFileContent = "file_content"
)

var (
	listReposPattern = regexp.MustCompile(`(?i)github repos|github repositories|list my github|my github projects`)

	analyzePatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)analy[sz]e ([\w-]+) repo`),
		regexp.MustCompile(`(?i)(?:how many|number of|total|count|list all|show all|which) files (?:are )?in ([\w-]+)(?: repo)?`),
		regexp.MustCompile(`(?i)files in ([\w-]+) repo`),
		regexp.MustCompile(`(?i)repo ([\w-]+) files`),
	}

	yamlFilesPattern   = regexp.MustCompile(`(?i)(?:ya?ml) files.* in ([\w-]+)`)
	fileContentPattern = regexp.MustCompile(`(?i)file ([\w./-]+) (?:in|from) ([\w-]+) repo`)
)

// routeRepoIntent checks the question against the repository intents
// and executes the matching tool. Returns empty tool name when no
// intent matches and the model should answer instead.
func (a *Agent) routeRepoIntent(ctx context.Context, question string) (string, string, error) {
	if repo, path, ok := matchFileContent(question); ok {
		content, err := a.repos.FileContent(ctx, a.repos.Qualify(repo), path)
		if err != nil {
			return "", "", fmt.Errorf("agent: fetching file: %w", err)
		}
		reply := fmt.Sprintf("Content of %s in %s:\n\n%s", path, repo, content)
		return reply, toolFileContent, nil
	}

	if repo, ok := matchYAMLFiles(question); ok {
		analysis, err := a.repos.Analyze(ctx, repo)
		if err != nil {
			return "", "", fmt.Errorf("agent: analyzing repo: %w", err)
		}
		var yamlFiles []string
		for _, f := range analysis.Files {
			if strings.HasSuffix(f, ".yml") || strings.HasSuffix(f, ".yaml") {
				yamlFiles = append(yamlFiles, f)
			}
		}
		if len(yamlFiles) == 0 {
			return fmt.Sprintf("No YAML (.yml/.yaml) files found in %s repo.", repo), toolYAMLFiles, nil
		}
		return fmt.Sprintf("YAML files in %s repo:\n\n%s", repo, strings.Join(yamlFiles, "\n")), toolYAMLFiles, nil
	}

	if repo, ok := matchAnalyze(question); ok {
		analysis, err := a.repos.Analyze(ctx, repo)
		if err != nil {
			return "", "", fmt.Errorf("agent: analyzing repo: %w", err)
		}
		return formatAnalysis(analysis), toolAnalyzeRepo, nil
	}

	if listReposPattern.MatchString(question) {
		repos, err := a.repos.ListRepos(ctx)
		if err != nil {
			return "", "", fmt.Errorf("agent: listing repos: %w", err)
		}
		return formatRepoList(repos), toolListRepos, nil
	}

	return "", "", nil
}

func matchAnalyze(question string) (string, bool) {
	for _, pat := range analyzePatterns {
		if m := pat.FindStringSubmatch(question); m != nil {
			return m[1], true
		}
	}
	return "", false
}

func matchYAMLFiles(question string) (string, bool) {
	if m := yamlFilesPattern.FindStringSubmatch(question); m != nil {
		return m[1], true
	}
	return "", false
}

func matchFileContent(question string) (string, string, bool) {
	if m := fileContentPattern.FindStringSubmatch(question); m != nil {
		return m[2], m[1], true
	}
	return "", "", false
}

func formatRepoList(repos []github.Repo) string {
	if len(repos) == 0 {
		return "No repositories found."
	}
	var b strings.Builder
	b.WriteString("Here are your GitHub repositories:\n\n")
	for i, repo := range repos {
		fmt.Fprintf(&b, "%d. **%s**\n", i+1, repo.Name)
		if repo.Language != "" {
			fmt.Fprintf(&b, "   - Language: %s\n", repo.Language)
		}
		if repo.Description != "" {
			fmt.Fprintf(&b, "   - Description: %s\n", repo.Description)
		}
		fmt.Fprintf(&b, "   - Stars: %d\n", repo.Stars)
		visibility := "No"
		if repo.Private {
			visibility = "Yes"
		}
		fmt.Fprintf(&b, "   - Private: %s\n\n", visibility)
	}
	return b.String()
}

const maxListedFiles = 50

func formatAnalysis(analysis *github.Analysis) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Repository Analysis: %s\n%s\n\n", analysis.RepoName, strings.Repeat("=", 50))
	fmt.Fprintf(&b, "Description: %s\n", orDefault(analysis.Description, "No description"))
	fmt.Fprintf(&b, "Primary Language: %s\n", orDefault(analysis.Language, "Not specified"))
	fmt.Fprintf(&b, "Total Files: %d\n", analysis.TotalFiles)
	fmt.Fprintf(&b, "Stars: %d\n", analysis.Stars)
	fmt.Fprintf(&b, "Forks: %d\n", analysis.Forks)
	fmt.Fprintf(&b, "Last Updated: %s\n\n", orDefault(analysis.UpdatedAt, "Unknown"))

	b.WriteString("File Types Distribution:\n")
	type typeCount struct {
		ext   string
		count int
	}
	counts := make([]typeCount, 0, len(analysis.FileTypes))
	for ext, count := range analysis.FileTypes {
		counts = append(counts, typeCount{ext, count})
	}
	sort.Slice(counts, func(i, j int) bool {
		if counts[i].count != counts[j].count {
			return counts[i].count > counts[j].count
		}
		return counts[i].ext < counts[j].ext
	})
	for _, tc := range counts {
		fmt.Fprintf(&b, "  - .%s: %d files\n", tc.ext, tc.count)
	}

	fmt.Fprintf(&b, "\nAll Files (%d):\n", analysis.TotalFiles)
	for i, f := range analysis.Files {
		if i == maxListedFiles {
			fmt.Fprintf(&b, "\n  ... and %d more files\n", len(analysis.Files)-maxListedFiles)
			break
		}
		fmt.Fprintf(&b, "  - %s\n", f)
	}
	return b.String()
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
