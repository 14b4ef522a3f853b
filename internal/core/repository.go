package core

import (
	"encoding/json"
	"fmt"
	"time"
)

// Repository is the subset of a repository resource the CLI summarises.
type Repository struct {
	FullName        string    `json:"full_name"`
	Description     string    `json:"description"`
	Private         bool      `json:"private"`
	Fork            bool      `json:"fork"`
	Archived        bool      `json:"archived"`
	Language        string    `json:"language"`
	DefaultBranch   string    `json:"default_branch"`
	StargazersCount int       `json:"stargazers_count"`
	ForksCount      int       `json:"forks_count"`
	OpenIssuesCount int       `json:"open_issues_count"`
	HTMLURL         string    `json:"html_url"`
	PushedAt        time.Time `json:"pushed_at"`
}

// DecodeRepository reads a repository summary from a resource payload.
func DecodeRepository(data json.RawMessage) (*Repository, error) {
	var repo Repository
	if err := json.Unmarshal(data, &repo); err != nil {
		return nil, fmt.Errorf("decode repository: %w", err)
	}
	if repo.FullName == "" {
		return nil, fmt.Errorf("decode repository: payload has no full_name")
	}
	return &repo, nil
}
