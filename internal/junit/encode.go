package junit

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"strconv"
)

// Wire types. Every numeric attribute is pre-formatted so the document does
// not depend on encoding/xml's float rendering.
type xmlRecord struct {
	Type    string `xml:"type,attr"`
	Message string `xml:"message,attr"`
	Text    string `xml:",chardata"`
}

type xmlSkipped struct {
	Message string `xml:"message,attr,omitempty"`
}

type xmlProperty struct {
	Name  string `xml:"name,attr"`
	Value string `xml:"value,attr"`
}

type xmlTestcase struct {
	Name      string      `xml:"name,attr"`
	Classname string      `xml:"classname,attr"`
	Time      string      `xml:"time,attr"`
	Status    string      `xml:"status,attr"`
	Skipped   *xmlSkipped `xml:"skipped,omitempty"`
	Errors    []xmlRecord `xml:"error"`
	Failures  []xmlRecord `xml:"failure"`
	SystemOut string      `xml:"system-out,omitempty"`
	SystemErr string      `xml:"system-err,omitempty"`
}

type xmlTestsuite struct {
	Name       string        `xml:"name,attr"`
	Tests      string        `xml:"tests,attr"`
	Failures   string        `xml:"failures,attr"`
	Errors     string        `xml:"errors,attr"`
	Time       string        `xml:"time,attr"`
	Disabled   string        `xml:"disabled,attr"`
	Skipped    string        `xml:"skipped,attr"`
	Timestamp  string        `xml:"timestamp,attr"`
	Hostname   string        `xml:"hostname,attr"`
	ID         string        `xml:"id,attr"`
	Package    string        `xml:"package,attr"`
	Properties []xmlProperty `xml:"properties>property,omitempty"`
	Testcases  []xmlTestcase `xml:"testcase"`
	SystemOut  string        `xml:"system-out,omitempty"`
	SystemErr  string        `xml:"system-err,omitempty"`
}

type xmlTestsuites struct {
	XMLName    xml.Name       `xml:"testsuites"`
	Name       string         `xml:"name,attr"`
	Time       string         `xml:"time,attr"`
	Tests      string         `xml:"tests,attr"`
	Failures   string         `xml:"failures,attr"`
	Disabled   string         `xml:"disabled,attr"`
	Errors     string         `xml:"errors,attr"`
	Skipped    string         `xml:"skipped,attr"`
	Testsuites []xmlTestsuite `xml:"testsuite"`
}

const timestampLayout = "2006-01-02T15:04:05"

// Encode writes r as an indented JUnit XML document. Reports that violate
// the rollup invariants are refused.
func Encode(w io.Writer, r ReportRoot) error {
	if err := r.Validate(); err != nil {
		return fmt.Errorf("junit: refusing to encode: %w", err)
	}

	if _, err := io.WriteString(w, xml.Header); err != nil {
		return fmt.Errorf("junit: write header: %w", err)
	}
	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	if err := enc.Encode(toXML(r)); err != nil {
		return fmt.Errorf("junit: encode: %w", err)
	}
	if _, err := io.WriteString(w, "\n"); err != nil {
		return fmt.Errorf("junit: write trailer: %w", err)
	}
	return nil
}

// Marshal returns the XML document for r.
func Marshal(r ReportRoot) ([]byte, error) {
	var buf bytes.Buffer
	if err := Encode(&buf, r); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func toXML(r ReportRoot) xmlTestsuites {
	out := xmlTestsuites{
		Name:       r.Name,
		Time:       FormatSeconds(r.Time),
		Tests:      strconv.Itoa(r.Tests),
		Failures:   strconv.Itoa(r.Failures),
		Disabled:   strconv.Itoa(r.Disabled),
		Errors:     strconv.Itoa(r.Errors),
		Skipped:    strconv.Itoa(r.Skipped),
		Testsuites: make([]xmlTestsuite, 0, len(r.Suites)),
	}
	for _, s := range r.Suites {
		xs := xmlTestsuite{
			Name:      s.Name,
			Tests:     strconv.Itoa(s.Tests),
			Failures:  strconv.Itoa(s.Failures),
			Errors:    strconv.Itoa(s.Errors),
			Time:      FormatSeconds(s.Time),
			Disabled:  strconv.Itoa(s.Disabled),
			Skipped:   strconv.Itoa(s.Skipped),
			Timestamp: s.Timestamp.UTC().Format(timestampLayout),
			Hostname:  s.Hostname,
			ID:        s.ID,
			Package:   s.Package,
			SystemOut: s.SystemOut,
			SystemErr: s.SystemErr,
		}
		for _, p := range s.Properties {
			xs.Properties = append(xs.Properties, xmlProperty(p))
		}
		for _, c := range s.Cases {
			xc := xmlTestcase{
				Name:      c.Name,
				Classname: c.Classname,
				Time:      FormatSeconds(c.Time),
				Status:    string(c.Status),
				SystemOut: c.SystemOut,
				SystemErr: c.SystemErr,
			}
			if c.Skipped != nil {
				xc.Skipped = &xmlSkipped{Message: c.Skipped.Message}
			}
			for _, e := range c.Errors {
				xc.Errors = append(xc.Errors, xmlRecord(e))
			}
			for _, f := range c.Failures {
				xc.Failures = append(xc.Failures, xmlRecord(f))
			}
			xs.Testcases = append(xs.Testcases, xc)
		}
		out.Testsuites = append(out.Testsuites, xs)
	}
	return out
}
