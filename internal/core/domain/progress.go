package domain

// Progress is a read-side rollup of chunk outcomes for a session.
type Progress struct {
	SessionID string `json:"session_id"`
	Total     int    `json:"total"`
	Succeeded int    `json:"succeeded"`
	Failed    int    `json:"failed"`
	Pending   int    `json:"pending"`
	Percent   int    `json:"percent"`
	Segments  int    `json:"segments"`
	Status    string `json:"status"`
}

// ComputeProgress rolls up chunk states. FAILED, CANCELLED and TIMED_OUT count as failed.
func ComputeProgress(session *Session, chunks []Chunk, segments int) Progress {
	p := Progress{Total: len(chunks), Segments: segments}
	if session != nil {
		p.SessionID = session.ID
		p.Status = string(session.Status)
	}
	for i := range chunks {
		switch {
		case chunks[i].Status == ChunkSucceeded:
			p.Succeeded++
		case chunks[i].Status.IsFailure():
			p.Failed++
		default:
			p.Pending++
		}
	}
	if p.Total > 0 {
		p.Percent = (p.Succeeded + p.Failed) * 100 / p.Total
	}
	return p
}
