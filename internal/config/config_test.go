package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeProperties(t *testing.T, content string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sensorcap.properties")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	t.Setenv("SENSORCAP_CONFIG", path)
}

func TestLoad_Basic(t *testing.T) {
	writeProperties(t, `
# fleet under test
devicelist=floor1,floor2
floor1.ipaddress=192.168.0.10
floor1.port=8080
floor1.delay=10,6
floor2.ipaddress=iolm-floor2.plant.local
floor2.delay=30,10
httptimeout=1.5
logfile=/var/log/sensorcap.log
debuglevel=DEBUG
310@2729@acceleration=1.0
310@2729@velocity=2.5
310@0003848155@temperaturemax=100.0
`)

	cfg, err := Load()
	require.NoError(t, err)

	require.Len(t, cfg.Devices, 2)
	assert.Equal(t, "floor1", cfg.Devices[0].Name)
	assert.Equal(t, "192.168.0.10", cfg.Devices[0].IPAddress)
	assert.Equal(t, 8080, cfg.Devices[0].Port)
	assert.Equal(t, 10, cfg.Devices[0].LoopInterval)
	assert.Equal(t, 6, cfg.Devices[0].RefreshCount)

	// port 未配置时默认 80
	assert.Equal(t, 80, cfg.Devices[1].Port)
	assert.Equal(t, 30, cfg.Devices[1].LoopInterval)
	assert.Equal(t, 10, cfg.Devices[1].RefreshCount)

	assert.Equal(t, 1500*time.Millisecond, cfg.HTTPTimeout)
	assert.Equal(t, "/var/log/sensorcap.log", cfg.Log.File)
	assert.Equal(t, "debug", cfg.Log.Level)

	require.Contains(t, cfg.Thresholds, "310@2729")
	assert.Equal(t, 1.0, cfg.Thresholds["310@2729"]["acceleration"])
	assert.Equal(t, 2.5, cfg.Thresholds["310@2729"]["velocity"])
	assert.Equal(t, 100.0, cfg.Thresholds["310@0003848155"]["temperaturemax"])

	assert.Empty(t, cfg.Warnings)
}

func TestLoad_DelayClamping(t *testing.T) {
	cases := []struct {
		name         string
		delay        string
		wantInterval int
		wantRefresh  int
	}{
		{"below minimum", "1,2", 5, 5},
		{"above maximum", "500,50", 200, 20},
		{"within bounds", "60,12", 60, 12},
		{"at bounds", "5,20", 5, 20},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			writeProperties(t, `
devicelist=dev1
dev1.ipaddress=10.0.0.1
dev1.delay=`+tc.delay+`
`)
			cfg, err := Load()
			require.NoError(t, err)
			require.Len(t, cfg.Devices, 1)
			assert.Equal(t, tc.wantInterval, cfg.Devices[0].LoopInterval)
			assert.Equal(t, tc.wantRefresh, cfg.Devices[0].RefreshCount)
		})
	}
}

func TestLoad_NonNumericDelayDefaulted(t *testing.T) {
	writeProperties(t, `
devicelist=dev1
dev1.ipaddress=10.0.0.1
dev1.delay=abc,xyz
`)
	cfg, err := Load()
	require.NoError(t, err)
	require.Len(t, cfg.Devices, 1)
	assert.Equal(t, DefaultLoopInterval, cfg.Devices[0].LoopInterval)
	assert.Equal(t, DefaultRefreshCount, cfg.Devices[0].RefreshCount)
	assert.Len(t, cfg.Warnings, 2)
}

func TestLoad_MalformedDeviceDroppedOthersKept(t *testing.T) {
	writeProperties(t, `
devicelist=broken,good
broken.delay=10,6
good.ipaddress=10.0.0.2
good.delay=10,6
`)
	cfg, err := Load()
	require.NoError(t, err)
	require.Len(t, cfg.Devices, 1)
	assert.Equal(t, "good", cfg.Devices[0].Name)
	require.Len(t, cfg.Warnings, 1)
	assert.Contains(t, cfg.Warnings[0], "broken")
}

func TestLoad_UnrecognizedDevicePropertyDropsDevice(t *testing.T) {
	writeProperties(t, `
devicelist=dev1,dev2
dev1.ipaddress=10.0.0.1
dev1.delay=10,6
dev1.bogus=1
dev2.ipaddress=10.0.0.2
dev2.delay=10,6
`)
	cfg, err := Load()
	require.NoError(t, err)
	require.Len(t, cfg.Devices, 1)
	assert.Equal(t, "dev2", cfg.Devices[0].Name)
}

func TestLoad_UnrecognizedThresholdIgnored(t *testing.T) {
	writeProperties(t, `
devicelist=dev1
dev1.ipaddress=10.0.0.1
dev1.delay=10,6
310@2729@humidity=55.0
310@2729@acceleration=1.0
`)
	cfg, err := Load()
	require.NoError(t, err)

	require.Contains(t, cfg.Thresholds, "310@2729")
	assert.NotContains(t, cfg.Thresholds["310@2729"], "humidity")
	assert.Equal(t, 1.0, cfg.Thresholds["310@2729"]["acceleration"])
	require.Len(t, cfg.Warnings, 1)
	assert.Contains(t, cfg.Warnings[0], "humidity")
}

func TestLoad_NoDevicelist(t *testing.T) {
	writeProperties(t, `httptimeout=1.0`)
	_, err := Load()
	require.Error(t, err)
}

func TestLoad_MissingFile(t *testing.T) {
	t.Setenv("SENSORCAP_CONFIG", filepath.Join(t.TempDir(), "missing.properties"))
	_, err := Load()
	require.Error(t, err)
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	writeProperties(t, `
devicelist=dev1
dev1.ipaddress=10.0.0.1
dev1.delay=10,6
dbpassword=frompros
`)
	t.Setenv("DB_PASSWORD", "fromenv")
	t.Setenv("DB_HOST", "db.internal")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "fromenv", cfg.Database.Password)
	assert.Equal(t, "db.internal", cfg.Database.Host)
}
