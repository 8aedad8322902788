package pipeline

import "fmt"

// TransferError aborts the fetch stage: retrieving a file from the remote
// site or uploading it to staging failed.
type TransferError struct {
	Name string
	// Op is "retrieve" or "upload".
	Op  string
	Err error
}

func (e *TransferError) Error() string {
	return fmt.Sprintf("transfer %s: %s: %v", e.Name, e.Op, e.Err)
}

func (e *TransferError) Unwrap() error {
	return e.Err
}

// CorruptArchiveError is reported for a staged archive that cannot be read
// as zip. Only that archive is skipped.
type CorruptArchiveError struct {
	Name string
	Err  error
}

func (e *CorruptArchiveError) Error() string {
	return fmt.Sprintf("archive %s is corrupt: %v", e.Name, e.Err)
}

func (e *CorruptArchiveError) Unwrap() error {
	return e.Err
}
