package mailbox

import "errors"

var (
	errMissingFrontmatter    = errors.New("message missing frontmatter delimiter")
	errMissingFrontmatterEnd = errors.New("message missing closing frontmatter delimiter")
)
