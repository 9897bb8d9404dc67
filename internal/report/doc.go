// Package report renders session reports and history lists as plain
// text, JSON or Markdown. All writers implement Writer and can be
// combined with MultiWriter.
package report
