package modem

import (
	"fmt"
	"io"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// APNEntry associates one serving operator with the access point name to
// use for its packet-data gateway.
type APNEntry struct {
	MCCMNC int    `yaml:"mccmnc"`
	APN    string `yaml:"apn"`
}

// APNTable is an immutable ordered set of operator-to-APN entries used for
// automatic APN selection. Lookup is by exact numeric MCC-MNC match.
type APNTable struct {
	entries []APNEntry
}

// defaultAPNs lists operators the driver knows out of the box. Overrides
// come from LoadAPNFile.
var defaultAPNs = []APNEntry{
	{24001, "online.telia.se"},
	{24405, "internet"},
	{24412, "internet"},
	{24491, "internet"},
	{26201, "internet.t-mobile"},
	{26202, "web.vodafone.de"},
	{26203, "internet.eplus.de"},
	{23420, "everywhere"},
	{20416, "internet"},
	{20201, "internet"},
}

// DefaultAPNTable returns the built-in operator table.
func DefaultAPNTable() APNTable {
	return APNTable{entries: defaultAPNs}
}

// NewAPNTable builds a table from the given entries. Entries earlier in the
// slice win on duplicate codes.
func NewAPNTable(entries []APNEntry) APNTable {
	out := make([]APNEntry, len(entries))
	copy(out, entries)
	return APNTable{entries: out}
}

// Lookup resolves an MCC-MNC code to its access point name. The code is
// matched numerically, so leading zeros in the textual form are ignored.
func (t APNTable) Lookup(mccmnc string) (string, bool) {
	code, err := strconv.Atoi(mccmnc)
	if err != nil {
		return "", false
	}
	for _, e := range t.entries {
		if e.MCCMNC == code {
			return e.APN, true
		}
	}
	return "", false
}

// LoadAPNTable reads operator entries from a YAML document of the form:
//
//	- mccmnc: 24405
//	  apn: internet
//
// The loaded entries take precedence over the built-in table.
func LoadAPNTable(r io.Reader) (APNTable, error) {
	var entries []APNEntry
	if err := yaml.NewDecoder(r).Decode(&entries); err != nil {
		return APNTable{}, fmt.Errorf("decode APN table: %w", err)
	}
	return APNTable{entries: append(entries, defaultAPNs...)}, nil
}

// LoadAPNFile reads operator entries from a YAML file path.
func LoadAPNFile(path string) (APNTable, error) {
	f, err := os.Open(path)
	if err != nil {
		return APNTable{}, fmt.Errorf("open APN table: %w", err)
	}
	defer f.Close()
	return LoadAPNTable(f)
}
