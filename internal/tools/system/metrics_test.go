package system

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLoadAvgRegex(t *testing.T) {
	line := " 10:30:01 up 5 days,  2:14,  1 user,  load average: 0.52, 0.58, 0.59"
	m := loadAvgRe.FindStringSubmatch(line)
	assert.Len(t, m, 2)
	assert.Equal(t, "0.52", m[1])
}

func TestMemLineRegex(t *testing.T) {
	line := "Mem:           3900        1200         800         120         900        2300"
	m := memLineRe.FindStringSubmatch(line)
	assert.Len(t, m, 3)
	assert.Equal(t, "3900", m[1])
	assert.Equal(t, "1200", m[2])
}

func TestDiskLineRegex(t *testing.T) {
	line := "/dev/sda1        50G   46G  1.5G  97% /"
	m := diskLineRe.FindStringSubmatch(line)
	assert.Len(t, m, 2)
	assert.Equal(t, "97", m[1])
}
