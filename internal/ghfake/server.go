// Package ghfake is an in-memory stand in for the parts of the GitHub REST API
// the publisher uses. Only meant for tests.
package ghfake

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"

	"github.com/google/go-github/v62/github"
	"github.com/gorilla/mux"
)

// Operations which can be counted and made to fail
const (
	OpGetRepo     = "get_repo"
	OpCreateRepo  = "create_repo"
	OpGetContents = "get_contents"
	OpPutContents = "put_contents"
	OpGetCommit   = "get_commit"
	OpEnablePages = "enable_pages"
)

// Repo is a fake repository
type Repo struct {
	// Name of the repository
	Name string

	// Files maps paths to their content on the default branch
	Files map[string]string

	// FileSHAs maps paths to their blob SHA
	FileSHAs map[string]string

	// Commits are commit SHAs, newest last
	Commits []string

	// CommitMessages are commit messages, in the same order as Commits
	CommitMessages []string

	// InitialCommitBranch is the branch given in the request which made the
	// first commit, empty if none was given
	InitialCommitBranch string

	// PagesEnabled indicates Pages was enabled
	PagesEnabled bool

	// Org is the organization the repository was created in, empty if it was
	// created for the authenticated user
	Org string
}

// Server fakes the GitHub API
type Server struct {
	// Owner is the login repositories belong to
	Owner string

	// ForeignNames are repository names taken by another account. They can not be
	// read and can not be created.
	ForeignNames map[string]bool

	mu       sync.Mutex
	repos    map[string]*Repo
	calls    map[string]int
	failures map[string][]int
	counter  int

	httpServer *httptest.Server
}

// NewServer starts a fake GitHub API for owner. Call Close when done.
func NewServer(owner string) *Server {
	s := &Server{
		Owner:        owner,
		ForeignNames: map[string]bool{},
		repos:        map[string]*Repo{},
		calls:        map[string]int{},
		failures:     map[string][]int{},
	}

	router := mux.NewRouter()
	router.HandleFunc("/repos/{owner}/{repo}", s.handleGetRepo).Methods("GET")
	router.HandleFunc("/user/repos", s.handleCreateRepo).Methods("POST")
	router.HandleFunc("/orgs/{org}/repos", s.handleCreateRepo).Methods("POST")
	router.HandleFunc("/repos/{owner}/{repo}/contents/{path:.+}", s.handleGetContents).Methods("GET")
	router.HandleFunc("/repos/{owner}/{repo}/contents/{path:.+}", s.handlePutContents).Methods("PUT")
	router.HandleFunc("/repos/{owner}/{repo}/commits/{ref}", s.handleGetCommit).Methods("GET")
	router.HandleFunc("/repos/{owner}/{repo}/pages", s.handleEnablePages).Methods("POST")

	s.httpServer = httptest.NewServer(router)

	return s
}

// Close shuts down the server
func (s *Server) Close() {
	s.httpServer.Close()
}

// URL is the base URL of the fake API
func (s *Server) URL() string {
	return s.httpServer.URL + "/"
}

// Client returns a go-github client which talks to the fake API
func (s *Server) Client() *github.Client {
	client := github.NewClient(nil)

	baseURL, err := url.Parse(s.URL())
	if err != nil {
		panic(fmt.Errorf("failed to parse fake GitHub URL: %s", err.Error()))
	}
	client.BaseURL = baseURL

	return client
}

// FailNext makes the next calls of op respond with the status codes, in order,
// before behaving normally again
func (s *Server) FailNext(op string, codes ...int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.failures[op] = append(s.failures[op], codes...)
}

// Calls returns how many times op was requested, including injected failures
func (s *Server) Calls(op string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.calls[op]
}

// Repo returns a copy of a repository, nil if it does not exist
func (s *Server) Repo(name string) *Repo {
	s.mu.Lock()
	defer s.mu.Unlock()

	repo, ok := s.repos[name]
	if !ok {
		return nil
	}

	c := *repo
	c.Files = map[string]string{}
	for k, v := range repo.Files {
		c.Files[k] = v
	}
	c.Commits = append([]string{}, repo.Commits...)
	c.CommitMessages = append([]string{}, repo.CommitMessages...)

	return &c
}

// RepoCount is the number of repositories which exist
func (s *Server) RepoCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.repos)
}

// SeedRepo creates a repository with files already committed
func (s *Server) SeedRepo(name string, files map[string]string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	repo := s.newRepo(name)
	for path, content := range files {
		s.commit(repo, path, content, "seed "+path)
	}
}

// newRepo creates an empty repository, mu must be held
func (s *Server) newRepo(name string) *Repo {
	repo := &Repo{
		Name:     name,
		Files:    map[string]string{},
		FileSHAs: map[string]string{},
	}
	s.repos[name] = repo

	return repo
}

// nextSHA returns a new unique SHA, mu must be held
func (s *Server) nextSHA() string {
	s.counter++
	return fmt.Sprintf("%040x", s.counter)
}

// commit writes a file and records a commit, mu must be held
func (s *Server) commit(repo *Repo, path, content, message string) string {
	repo.Files[path] = content
	repo.FileSHAs[path] = s.nextSHA()

	sha := s.nextSHA()
	repo.Commits = append(repo.Commits, sha)
	repo.CommitMessages = append(repo.CommitMessages, message)

	return sha
}

// begin counts a call and returns true if an injected failure was written, mu
// must be held
func (s *Server) begin(op string, w http.ResponseWriter) bool {
	s.calls[op]++

	if codes := s.failures[op]; len(codes) > 0 {
		s.failures[op] = codes[1:]
		respond(w, codes[0], map[string]string{
			"message": fmt.Sprintf("injected %d failure", codes[0]),
		})
		return true
	}

	return false
}

// repoJSON is the API representation of a repository
func (s *Server) repoJSON(repo *Repo) map[string]interface{} {
	return map[string]interface{}{
		"name":           repo.Name,
		"full_name":      fmt.Sprintf("%s/%s", s.Owner, repo.Name),
		"html_url":       fmt.Sprintf("https://github.com/%s/%s", s.Owner, repo.Name),
		"default_branch": "main",
		"owner": map[string]string{
			"login": s.Owner,
		},
	}
}

func (s *Server) handleGetRepo(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.begin(OpGetRepo, w) {
		return
	}

	repo, ok := s.repos[mux.Vars(r)["repo"]]
	if !ok || mux.Vars(r)["owner"] != s.Owner {
		respond(w, http.StatusNotFound, map[string]string{"message": "Not Found"})
		return
	}

	respond(w, http.StatusOK, s.repoJSON(repo))
}

func (s *Server) handleCreateRepo(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.begin(OpCreateRepo, w) {
		return
	}

	var body struct {
		Name     string `json:"name"`
		AutoInit bool   `json:"auto_init"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		respond(w, http.StatusBadRequest, map[string]string{"message": err.Error()})
		return
	}

	if _, ok := s.repos[body.Name]; ok || s.ForeignNames[body.Name] {
		respond(w, http.StatusUnprocessableEntity, map[string]interface{}{
			"message": "Repository creation failed.",
			"errors": []map[string]string{{
				"resource": "Repository",
				"code":     "custom",
				"field":    "name",
				"message":  "name already exists on this account",
			}},
		})
		return
	}

	repo := s.newRepo(body.Name)
	repo.Org = mux.Vars(r)["org"]
	if body.AutoInit {
		s.commit(repo, "README.md", "# "+body.Name, "Initial commit")
	}

	respond(w, http.StatusCreated, s.repoJSON(repo))
}

func (s *Server) handleGetContents(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.begin(OpGetContents, w) {
		return
	}

	vars := mux.Vars(r)
	repo, ok := s.repos[vars["repo"]]
	if !ok {
		respond(w, http.StatusNotFound, map[string]string{"message": "Not Found"})
		return
	}

	if len(repo.Commits) == 0 {
		respond(w, http.StatusNotFound, map[string]string{"message": "This repository is empty."})
		return
	}

	content, ok := repo.Files[vars["path"]]
	if !ok {
		respond(w, http.StatusNotFound, map[string]string{"message": "Not Found"})
		return
	}

	respond(w, http.StatusOK, map[string]string{
		"type":     "file",
		"encoding": "base64",
		"name":     vars["path"],
		"path":     vars["path"],
		"sha":      repo.FileSHAs[vars["path"]],
		"content":  base64.StdEncoding.EncodeToString([]byte(content)),
	})
}

func (s *Server) handlePutContents(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.begin(OpPutContents, w) {
		return
	}

	vars := mux.Vars(r)
	repo, ok := s.repos[vars["repo"]]
	if !ok {
		respond(w, http.StatusNotFound, map[string]string{"message": "Not Found"})
		return
	}

	var body struct {
		Message string  `json:"message"`
		Content []byte  `json:"content"`
		SHA     *string `json:"sha"`
		Branch  *string `json:"branch"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		respond(w, http.StatusBadRequest, map[string]string{"message": err.Error()})
		return
	}

	// An empty repository has no branch to name
	if len(repo.Commits) == 0 && body.Branch != nil {
		respond(w, http.StatusUnprocessableEntity, map[string]string{
			"message": fmt.Sprintf("Branch %s not found", *body.Branch),
		})
		return
	}

	path := vars["path"]
	if currentSHA, exists := repo.FileSHAs[path]; exists {
		if body.SHA == nil {
			respond(w, http.StatusUnprocessableEntity, map[string]string{
				"message": "\"sha\" wasn't supplied.",
			})
			return
		}
		if *body.SHA != currentSHA {
			respond(w, http.StatusConflict, map[string]string{
				"message": fmt.Sprintf("%s does not match %s", path, *body.SHA),
			})
			return
		}
	}

	if len(repo.Commits) == 0 && body.Branch != nil {
		repo.InitialCommitBranch = *body.Branch
	}

	sha := s.commit(repo, path, string(body.Content), body.Message)

	status := http.StatusOK
	if body.SHA == nil {
		status = http.StatusCreated
	}

	respond(w, status, map[string]interface{}{
		"content": map[string]string{
			"name": path,
			"path": path,
			"sha":  repo.FileSHAs[path],
		},
		"commit": map[string]string{
			"sha":     sha,
			"message": body.Message,
		},
	})
}

func (s *Server) handleGetCommit(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.begin(OpGetCommit, w) {
		return
	}

	repo, ok := s.repos[mux.Vars(r)["repo"]]
	if !ok {
		respond(w, http.StatusNotFound, map[string]string{"message": "Not Found"})
		return
	}

	if len(repo.Commits) == 0 {
		respond(w, http.StatusConflict, map[string]string{"message": "Git Repository is empty."})
		return
	}

	w.Header().Set("Content-Type", "application/vnd.github.v3.sha")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, repo.Commits[len(repo.Commits)-1])
}

func (s *Server) handleEnablePages(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.begin(OpEnablePages, w) {
		return
	}

	repo, ok := s.repos[mux.Vars(r)["repo"]]
	if !ok {
		respond(w, http.StatusNotFound, map[string]string{"message": "Not Found"})
		return
	}

	if repo.PagesEnabled {
		respond(w, http.StatusConflict, map[string]string{
			"message": "GitHub Pages is already enabled.",
		})
		return
	}

	repo.PagesEnabled = true

	respond(w, http.StatusCreated, map[string]interface{}{
		"url":      fmt.Sprintf("https://%s.github.io/%s/", s.Owner, repo.Name),
		"html_url": fmt.Sprintf("https://%s.github.io/%s/", s.Owner, repo.Name),
		"source": map[string]string{
			"branch": "main",
			"path":   "/",
		},
	})
}

// respond writes a JSON response
func respond(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(body); err != nil {
		panic(fmt.Errorf("failed to encode fake GitHub response: %s", err.Error()))
	}
}
