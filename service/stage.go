package service

// StageResult is the per-stage outcome value the pipeline accumulates instead
// of letting collaborator errors escape across stage boundaries. Stage
// independence is enforced by this type: a failed stage is data, and the
// pipeline decides explicitly what it blocks.
type StageResult struct {
	Name string
	OK   bool
	Err  error
}

func stageOK(name string) StageResult {
	return StageResult{Name: name, OK: true}
}

func stageFailed(name string, err error) StageResult {
	return StageResult{Name: name, Err: err}
}
