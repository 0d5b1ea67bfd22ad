package model

// CloneItem is the per-record outcome of a project clone.
type CloneItem struct {
	Provider    string
	Environment string
	SourceKey   string
	TargetKey   string
	// Overwritten is true when the target already held a credential that the
	// clone replaced.
	Overwritten bool
	Err         error
}

// Succeeded reports whether the record was cloned.
func (i CloneItem) Succeeded() bool { return i.Err == nil }

// CloneResult itemizes a project clone. Items is empty when the source
// project had no credentials.
type CloneResult struct {
	OperationID   string
	SourceProject string
	TargetProject string
	Items         []CloneItem
}

// Cloned returns the number of records copied to the target project.
func (r *CloneResult) Cloned() int {
	n := 0
	for _, item := range r.Items {
		if item.Succeeded() {
			n++
		}
	}
	return n
}

// Failed returns the number of records that could not be copied.
func (r *CloneResult) Failed() int {
	return len(r.Items) - r.Cloned()
}

// Overwritten returns the number of target records replaced by the clone.
func (r *CloneResult) Overwritten() int {
	n := 0
	for _, item := range r.Items {
		if item.Succeeded() && item.Overwritten {
			n++
		}
	}
	return n
}

// ProjectSummary groups a user's project-scoped credentials by project name.
type ProjectSummary struct {
	Name            string
	CredentialCount int
	Providers       []string
	Environments    []string
}
