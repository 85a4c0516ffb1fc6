// Package compose renders outgoing messages.
//
// Templates use {name} placeholders; {{ and }} produce literal braces. A
// placeholder without a supplied value is an error rather than an empty
// string, since an emergency message with holes in it is worse than a loud
// failure that gets retried.
//
// Template files may start with YAML frontmatter carrying a subject. Markdown
// templates (.md) also yield an HTML alternative; HTML templates (.html) yield
// a plain-text body for channels that cannot display markup.
package compose
