package reader

import "github.com/justapithecus/tractography/types"

// ResolvedFile is one file a participant's file type resolved to.
type ResolvedFile struct {
	FileType   string `json:"file_type"`
	Path       string `json:"path"`
	Derivative bool   `json:"derivative"`
}

// ResolvedParticipant is the `resolve` view of one subject/session.
type ResolvedParticipant struct {
	Subject string         `json:"subject"`
	Session string         `json:"session,omitempty"`
	Files   []ResolvedFile `json:"files"`
}

// DescribeResolved flattens a resolved dataset in resolution order. Paired
// types contribute one entry per file.
func DescribeResolved(ds *types.ResolvedDataset) ResolvedParticipant {
	id := ds.Identity()
	out := ResolvedParticipant{Subject: id.Subject, Session: id.Session, Files: []ResolvedFile{}}
	for _, name := range ds.Names() {
		for _, f := range ds.Files(name) {
			out.Files = append(out.Files, ResolvedFile{
				FileType:   name,
				Path:       f.Path(),
				Derivative: f.Derivative(),
			})
		}
	}
	return out
}
