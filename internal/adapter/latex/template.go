package latex

import "fmt"

// documentTemplate wraps a CircuiTikZ fragment in a standalone document.
// It has exactly one substitution point; the fragment is inserted verbatim.
const documentTemplate = `\documentclass[border=3mm]{standalone}
\usepackage{circuitikz}
\begin{document}
\begin{circuitikz}
%s
\end{circuitikz}
\end{document}
`

// Document returns the complete TeX source for code.
func Document(code string) string {
	return fmt.Sprintf(documentTemplate, code)
}
