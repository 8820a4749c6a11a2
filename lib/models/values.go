package models

import (
	"crypto/sha1"
	"fmt"
)

type PageContent struct {
	Text  string
	Title string
}

func DigestContent(content string) string {
	return fmt.Sprintf("%x", sha1.Sum([]byte(content)))
}
