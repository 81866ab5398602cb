package spectrum

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"unicode"
)

// dataForm is the layout of a JCAMP-DX data table.
type dataForm int

const (
	formNone dataForm = iota
	formXYData         // (X++(Y..Y)): abscissa then a run of ordinates
	formXYPoints       // (XY..XY): explicit pairs
)

// header holds the labelled records that drive decoding.
type header struct {
	firstX, lastX     float64
	hasFirst, hasLast bool
	xFactor, yFactor  float64
	nPoints           int
}

type dataLine struct {
	x  float64
	ys []float64
}

// Load reads a JCAMP-DX file.
func Load(path string) (*Spectrum, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open spectrum: %w", err)
	}
	defer f.Close()

	s, err := Read(f)
	if err != nil {
		return nil, fmt.Errorf("failed to parse spectrum %s: %w", path, err)
	}
	return s, nil
}

// Read decodes the AFFN/PAC subset of JCAMP-DX: XYDATA=(X++(Y..Y)) and
// XYPOINTS=(XY..XY) tables. Compressed (SQZ/DIF) tables are rejected.
func Read(r io.Reader) (*Spectrum, error) {
	s := &Spectrum{}
	h := header{xFactor: 1, yFactor: 1}
	form := formNone
	var lines []dataLine
	var pairs []float64

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if i := strings.Index(line, "$$"); i >= 0 {
			line = strings.TrimSpace(line[:i])
		}
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "##") {
			label, value, _ := strings.Cut(line[2:], "=")
			label = normalizeLabel(label)
			value = strings.TrimSpace(value)
			form = formNone

			var err error
			switch label {
			case "END":
				return s.finish(h, lines, pairs)
			case "TITLE":
				s.Title = value
			case "DATATYPE":
				s.DataType = value
			case "XUNITS":
				s.XUnits = value
			case "YUNITS":
				s.YUnits = value
			case "FIRSTX":
				h.firstX, err = parseFloat(value)
				h.hasFirst = true
			case "LASTX":
				h.lastX, err = parseFloat(value)
				h.hasLast = true
			case "XFACTOR":
				h.xFactor, err = parseFloat(value)
			case "YFACTOR":
				h.yFactor, err = parseFloat(value)
			case "NPOINTS":
				h.nPoints, err = strconv.Atoi(value)
			case "XYDATA":
				if !strings.HasPrefix(strings.ReplaceAll(value, " ", ""), "(X++(Y..Y))") {
					return nil, fmt.Errorf("line %d: unsupported XYDATA form %q", lineNo, value)
				}
				form = formXYData
			case "XYPOINTS", "PEAKTABLE":
				if !strings.HasPrefix(strings.ReplaceAll(value, " ", ""), "(XY..XY)") {
					return nil, fmt.Errorf("line %d: unsupported %s form %q", lineNo, label, value)
				}
				form = formXYPoints
			}
			if err != nil {
				return nil, fmt.Errorf("line %d: %s: %w", lineNo, label, err)
			}
			continue
		}

		values, err := tokenize(line)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}
		switch form {
		case formXYData:
			if len(values) < 2 {
				continue
			}
			lines = append(lines, dataLine{x: values[0], ys: values[1:]})
		case formXYPoints:
			pairs = append(pairs, values...)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return s.finish(h, lines, pairs)
}

func (s *Spectrum) finish(h header, lines []dataLine, pairs []float64) (*Spectrum, error) {
	switch {
	case len(lines) > 0:
		s.X, s.Y = expandXYData(h, lines)
	case len(pairs) > 0:
		if len(pairs)%2 != 0 {
			return nil, fmt.Errorf("odd number of values in XY table")
		}
		n := len(pairs) / 2
		s.X = make([]float64, n)
		s.Y = make([]float64, n)
		for i := 0; i < n; i++ {
			s.X[i] = pairs[2*i] * h.xFactor
			s.Y[i] = pairs[2*i+1] * h.yFactor
		}
	default:
		return nil, fmt.Errorf("no data table found")
	}
	return s, nil
}

// expandXYData assigns an abscissa to every ordinate of an X++(Y..Y) table.
// The step comes from FIRSTX, LASTX and NPOINTS when present, otherwise from
// consecutive line abscissas.
func expandXYData(h header, lines []dataLine) ([]float64, []float64) {
	total := 0
	for _, l := range lines {
		total += len(l.ys)
	}

	step := 0.0
	fixed := h.hasFirst && h.hasLast && h.nPoints > 1
	if fixed {
		step = (h.lastX - h.firstX) / float64(h.nPoints-1)
	}

	x := make([]float64, 0, total)
	y := make([]float64, 0, total)
	for i, l := range lines {
		start := l.x * h.xFactor
		if !fixed {
			switch {
			case i+1 < len(lines):
				step = (lines[i+1].x - l.x) * h.xFactor / float64(len(l.ys))
			case h.hasLast && len(l.ys) > 1:
				step = (h.lastX - start) / float64(len(l.ys)-1)
			}
		}
		for k, v := range l.ys {
			x = append(x, start+float64(k)*step)
			y = append(y, v*h.yFactor)
		}
	}
	return x, y
}

// normalizeLabel uppercases a label and drops the characters JCAMP-DX
// ignores when comparing labels.
func normalizeLabel(label string) string {
	var b strings.Builder
	for _, r := range label {
		switch r {
		case ' ', '-', '/', '_', '\t':
			continue
		}
		b.WriteRune(unicode.ToUpper(r))
	}
	return b.String()
}

func parseFloat(s string) (float64, error) {
	return strconv.ParseFloat(strings.TrimSpace(s), 64)
}

// tokenize splits an AFFN or PAC line. Values are separated by blanks or
// commas, and a sign starts a new value unless it belongs to an exponent.
func tokenize(line string) ([]float64, error) {
	var values []float64
	var cur strings.Builder

	flush := func() error {
		if cur.Len() == 0 {
			return nil
		}
		v, err := strconv.ParseFloat(cur.String(), 64)
		if err != nil {
			return fmt.Errorf("invalid value %q", cur.String())
		}
		values = append(values, v)
		cur.Reset()
		return nil
	}

	prev := rune(0)
	for _, r := range line {
		switch {
		case r == ' ' || r == '\t' || r == ',' || r == ';':
			if err := flush(); err != nil {
				return nil, err
			}
		case r == '+' || r == '-':
			if prev != 'e' && prev != 'E' {
				if err := flush(); err != nil {
					return nil, err
				}
			}
			cur.WriteRune(r)
		case unicode.IsDigit(r) || r == '.' || r == 'e' || r == 'E':
			cur.WriteRune(r)
		default:
			return nil, fmt.Errorf("unsupported character %q (compressed tables are not supported)", r)
		}
		prev = r
	}
	if err := flush(); err != nil {
		return nil, err
	}
	return values, nil
}

// Write encodes s as a JCAMP-DX 4.24 XYPOINTS table.
func (s *Spectrum) Write(w io.Writer) error {
	bw := bufio.NewWriter(w)
	title := s.Title
	if title == "" {
		title = "spectrum"
	}
	dataType := s.DataType
	if dataType == "" {
		dataType = "UNKNOWN"
	}

	fmt.Fprintf(bw, "##TITLE=%s\n", title)
	fmt.Fprintf(bw, "##JCAMP-DX=4.24\n")
	fmt.Fprintf(bw, "##DATA TYPE=%s\n", dataType)
	if s.XUnits != "" {
		fmt.Fprintf(bw, "##XUNITS=%s\n", s.XUnits)
	}
	if s.YUnits != "" {
		fmt.Fprintf(bw, "##YUNITS=%s\n", s.YUnits)
	}
	if n := s.NbPoints(); n > 0 {
		fmt.Fprintf(bw, "##FIRSTX=%s\n", formatFloat(s.FirstX()))
		fmt.Fprintf(bw, "##LASTX=%s\n", formatFloat(s.LastX()))
	}
	fmt.Fprintf(bw, "##NPOINTS=%d\n", s.NbPoints())
	fmt.Fprintf(bw, "##XYPOINTS=(XY..XY)\n")
	for i := range s.X {
		fmt.Fprintf(bw, "%s, %s\n", formatFloat(s.X[i]), formatFloat(s.Y[i]))
	}
	fmt.Fprintf(bw, "##END=\n")
	return bw.Flush()
}

// Save writes s to path, creating parent directories.
func (s *Spectrum) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create spectrum: %w", err)
	}
	if err := s.Write(f); err != nil {
		f.Close()
		return fmt.Errorf("failed to write spectrum %s: %w", path, err)
	}
	return f.Close()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
