package webhook

// Wire shapes for the three supported GitHub event payloads. Only the fields
// the ingress reads are declared.

type userRef struct {
	Login string `json:"login"`
}

type repositoryRef struct {
	Name     string  `json:"name"`
	CloneURL string  `json:"clone_url"`
	Owner    userRef `json:"owner"`
}

type pullRequestRef struct {
	Number int    `json:"number"`
	Title  string `json:"title"`
	Body   string `json:"body"`
	Head   struct {
		Ref string `json:"ref"`
	} `json:"head"`
}

type issueCommentEvent struct {
	Action string `json:"action"`
	Issue  struct {
		Number      int       `json:"number"`
		Title       string    `json:"title"`
		Body        string    `json:"body"`
		PullRequest *struct{} `json:"pull_request"`
	} `json:"issue"`
	Comment struct {
		ID   int64   `json:"id"`
		Body string  `json:"body"`
		User userRef `json:"user"`
	} `json:"comment"`
	Repository repositoryRef `json:"repository"`
}

type reviewCommentEvent struct {
	Action  string `json:"action"`
	Comment struct {
		ID        int64   `json:"id"`
		Body      string  `json:"body"`
		User      userRef `json:"user"`
		Path      string  `json:"path"`
		Line      int     `json:"line"`
		DiffHunk  string  `json:"diff_hunk"`
		InReplyTo int64   `json:"in_reply_to_id"`
	} `json:"comment"`
	PullRequest pullRequestRef `json:"pull_request"`
	Repository  repositoryRef  `json:"repository"`
}

type reviewEvent struct {
	Action string `json:"action"`
	Review struct {
		ID    int64   `json:"id"`
		Body  string  `json:"body"`
		User  userRef `json:"user"`
		State string  `json:"state"`
	} `json:"review"`
	PullRequest pullRequestRef `json:"pull_request"`
	Repository  repositoryRef  `json:"repository"`
}
