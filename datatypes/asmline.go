package datatypes

import (
	"errors"
	"regexp"
	"strconv"
	"strings"
)

type InLine struct {
	Raw   string   // original line
	Label string   // text before ':'
	Op    string   // mnemonic, directive or macro name
	Args  []string // remaining fields
}

var EmptyLineErr = errors.New("empty line")

var labelPattern = regexp.MustCompile(`^\s*([A-Za-z_.$][A-Za-z0-9_.$]*)\s*:`)

// ParseAsmLine splits an assembly line into label, operation and
// arguments. Everything after ';' is a comment. Lines holding only a label
// parse with an empty Op and no error.
func ParseAsmLine(rawLine string) (InLine, error) {
	code, _, _ := strings.Cut(rawLine, ";")
	line := InLine{Raw: rawLine}
	if m := labelPattern.FindStringSubmatch(code); m != nil {
		line.Label = m[1]
		code = code[len(m[0]):]
	}
	fields := strings.Fields(code)
	if len(fields) == 0 {
		if line.Label != "" {
			return line, nil
		}
		return InLine{}, EmptyLineErr
	}
	line.Op = fields[0]
	line.Args = fields[1:]
	return line, nil
}

var numRecognizers = []struct {
	re   *regexp.Regexp
	base int
}{
	{regexp.MustCompile(`^([-+]?)0b([01]+)$`), 2},
	{regexp.MustCompile(`^([-+]?)0o([0-7]+)$`), 8},
	{regexp.MustCompile(`^([-+]?)0[xX]([0-9a-fA-F]+)$`), 16},
	{regexp.MustCompile(`^([-+]?)([0-9]+)$`), 10},
}

// ParseNum reads an integer literal in binary (0b), octal (0o), hex (0x)
// or decimal, with an optional sign.
func ParseNum(in string) (int64, error) {
	for _, r := range numRecognizers {
		matches := r.re.FindStringSubmatch(in)
		if matches == nil {
			continue
		}
		num, err := strconv.ParseInt(matches[2], r.base, 64)
		if err != nil {
			return 0, err
		}
		if matches[1] == "-" {
			num = -num
		}
		return num, nil
	}
	return 0, errors.New("invalid number")
}

// ParseValue accepts everything ParseNum does plus decimal floating point
// literals.
func ParseValue(in string) (float64, error) {
	if n, err := ParseNum(in); err == nil {
		return float64(n), nil
	}
	f, err := strconv.ParseFloat(in, 64)
	if err != nil {
		return 0, errors.New("invalid number")
	}
	return f, nil
}
