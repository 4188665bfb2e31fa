package exec

// symlinkItem is the minimal item synthfs's CreateSymlinkOperation
// requires, mirroring the teacher's own item types in
// pkg/synthfs/synthfs_executor.go.
type symlinkItem struct {
	path   string
	target string
}

func (s *symlinkItem) Path() string   { return s.path }
func (s *symlinkItem) Type() string   { return "symlink" }
func (s *symlinkItem) Target() string { return s.target }
