package at_test

import (
	"bufio"
	"strings"
	"testing"

	"i4.energy/across/gsmppp/at"
)

func TestSplitter(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{
			name:  "single final response",
			input: "OK\r\n",
			want:  []string{"OK"},
		},
		{
			name:  "data line followed by final",
			input: "+CGATT: 1\r\nOK\r\n",
			want:  []string{"+CGATT: 1", "OK"},
		},
		{
			name:  "leading empty line is dropped",
			input: "\r\nOK\r\n",
			want:  []string{"OK"},
		},
		{
			name:  "connect with speed",
			input: "CONNECT 150000000\r\n",
			want:  []string{"CONNECT 150000000"},
		},
		{
			name:  "trailing partial without CRLF",
			input: "OK\r\nERR",
			want:  []string{"OK", "ERR"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			scanner := bufio.NewScanner(strings.NewReader(tt.input))
			scanner.Split(at.Splitter)

			var got []string
			for scanner.Scan() {
				if token := scanner.Text(); token != "" {
					got = append(got, token)
				}
			}
			if err := scanner.Err(); err != nil {
				t.Fatalf("unexpected scanner error: %v", err)
			}

			if len(got) != len(tt.want) {
				t.Fatalf("got tokens %q, want %q", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("token %d: got %q, want %q", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		line string
		want at.ResponseType
	}{
		{"OK", at.TypeFinal},
		{"ERROR", at.TypeFinal},
		{"CONNECT", at.TypeFinal},
		{"CONNECT 150000000", at.TypeFinal},
		{"NO CARRIER", at.TypeFinal},
		{"BUSY", at.TypeFinal},
		{"+CME ERROR: 10", at.TypeFinal},
		{"RING", at.TypeURC},
		{"+CREG: 1", at.TypeURC},
		{"+CSQ: 15,99", at.TypeURC},
		{"+CGATT: 1", at.TypeData},
		{"Quectel", at.TypeData},
	}

	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			if got := at.Classify(tt.line); got != tt.want {
				t.Errorf("Classify(%q) = %v, want %v", tt.line, got, tt.want)
			}
		})
	}
}
