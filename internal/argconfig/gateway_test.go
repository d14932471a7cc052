package argconfig

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/argnet/arg/internal/argcrypto"
)

func writeGatewayConfig(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "arg.conf")
	content := "gateA\ntun0\neth0\n250\n"
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadGatewayConfig(t *testing.T) {
	dir := t.TempDir()
	path := writeGatewayConfig(t, dir)

	cfg, err := LoadGatewayConfig(path)
	if err != nil {
		t.Fatalf("LoadGatewayConfig: %v", err)
	}
	if cfg.GateName != "gateA" || cfg.InternalDevice != "tun0" || cfg.ExternalDevice != "eth0" {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	if cfg.HopRateMillis != 250 {
		t.Fatalf("HopRateMillis = %d, want 250", cfg.HopRateMillis)
	}
	if cfg.Dir != dir {
		t.Fatalf("Dir = %q, want %q", cfg.Dir, dir)
	}
}

func TestLoadGatewayConfigSkipsBlankLines(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "arg.conf")
	content := "\ngateA\n\ntun0\neth0\n\n250\n"
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := LoadGatewayConfig(path)
	if err != nil {
		t.Fatalf("LoadGatewayConfig: %v", err)
	}
	if cfg.GateName != "gateA" || cfg.HopRateMillis != 250 {
		t.Fatalf("unexpected config: %+v", cfg)
	}
}

func TestLoadGatewayConfigMissingLineIsConfigBad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "arg.conf")
	if err := os.WriteFile(path, []byte("gateA\ntun0\n"), 0600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	if _, err := LoadGatewayConfig(path); err == nil {
		t.Fatal("expected error for truncated config")
	}
}

func TestLoadGatewayConfigRejectsLoosePermissions(t *testing.T) {
	dir := t.TempDir()
	path := writeGatewayConfig(t, dir)
	if err := os.Chmod(path, 0644); err != nil {
		t.Fatalf("chmod: %v", err)
	}

	if _, err := LoadGatewayConfig(path); err == nil {
		t.Fatal("expected error for world-readable config")
	}
}

func writeHexKeyFile(t *testing.T, path string, lines []string) {
	t.Helper()
	content := ""
	for _, l := range lines {
		content += l + "\n"
	}
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func TestLoadPeerPublicKeyRoundTrip(t *testing.T) {
	priv, err := argcrypto.TestKeyPair(1024)
	if err != nil {
		t.Fatalf("TestKeyPair: %v", err)
	}

	dir := t.TempDir()
	writeHexKeyFile(t, filepath.Join(dir, "gateB.pub"), []string{
		"10.1.0.0",
		"255.255.0.0",
		fmt.Sprintf("%x", priv.PublicKey.N),
		fmt.Sprintf("%x", priv.PublicKey.E),
	})

	pub, base, mask, err := LoadPeerPublicKey(dir, "gateB")
	if err != nil {
		t.Fatalf("LoadPeerPublicKey: %v", err)
	}
	if pub.N.Cmp(priv.PublicKey.N) != 0 || pub.E != priv.PublicKey.E {
		t.Fatal("round-tripped public key does not match")
	}
	if base.String() != "10.1.0.0" || mask.String() != "255.255.0.0" {
		t.Fatalf("base/mask = %v/%v, want 10.1.0.0/255.255.0.0", base, mask)
	}
}

func TestLoadPeerPublicKeyBadIP(t *testing.T) {
	dir := t.TempDir()
	writeHexKeyFile(t, filepath.Join(dir, "gateB.pub"), []string{
		"not-an-ip",
		"255.255.0.0",
		"ab",
		"10001",
	})
	if _, _, _, err := LoadPeerPublicKey(dir, "gateB"); err == nil {
		t.Fatal("expected error for invalid base IP")
	}
}

func TestLoadPeerPrivateKeyRoundTrip(t *testing.T) {
	priv, err := argcrypto.TestKeyPair(1024)
	if err != nil {
		t.Fatalf("TestKeyPair: %v", err)
	}

	dir := t.TempDir()
	writeHexKeyFile(t, filepath.Join(dir, "gateA.priv"), []string{
		fmt.Sprintf("%x", priv.N),
		fmt.Sprintf("%x", priv.PublicKey.E),
		fmt.Sprintf("%x", priv.D),
		fmt.Sprintf("%x", priv.Primes[0]),
		fmt.Sprintf("%x", priv.Primes[1]),
		"0",
		"0",
		"0",
	})

	loaded, err := LoadPeerPrivateKey(dir, "gateA")
	if err != nil {
		t.Fatalf("LoadPeerPrivateKey: %v", err)
	}
	if loaded.N.Cmp(priv.N) != 0 || loaded.D.Cmp(priv.D) != 0 {
		t.Fatal("round-tripped private key does not match")
	}

	msg := []byte("round trip check")
	sig, err := argcrypto.StdSuite{}.Sign(loaded, msg)
	if err != nil {
		t.Fatalf("sign with loaded key: %v", err)
	}
	if err := (argcrypto.StdSuite{}).Verify(&priv.PublicKey, msg, sig); err != nil {
		t.Fatalf("verify with original public key: %v", err)
	}
}

func TestLoadPeerPrivateKeyRejectsLoosePermissions(t *testing.T) {
	priv, err := argcrypto.TestKeyPair(1024)
	if err != nil {
		t.Fatalf("TestKeyPair: %v", err)
	}
	dir := t.TempDir()
	path := filepath.Join(dir, "gateA.priv")
	writeHexKeyFile(t, path, []string{
		fmt.Sprintf("%x", priv.N),
		fmt.Sprintf("%x", priv.PublicKey.E),
		fmt.Sprintf("%x", priv.D),
		fmt.Sprintf("%x", priv.Primes[0]),
		fmt.Sprintf("%x", priv.Primes[1]),
		"0", "0", "0",
	})
	if err := os.Chmod(path, 0644); err != nil {
		t.Fatalf("chmod: %v", err)
	}

	if _, err := LoadPeerPrivateKey(dir, "gateA"); err == nil {
		t.Fatal("expected error for world-readable private key")
	}
}

func TestDiscoverPeerNames(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"gateA.pub", "gateB.pub", "gateA.priv", "notes.txt"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0600); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}

	names, err := DiscoverPeerNames(dir)
	if err != nil {
		t.Fatalf("DiscoverPeerNames: %v", err)
	}
	if len(names) != 2 || names[0] != "gateA" || names[1] != "gateB" {
		t.Fatalf("names = %v, want [gateA gateB]", names)
	}
}

func TestLoadDebugOverlayAbsentIsNotError(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "arg.conf")
	if err := os.WriteFile(path, []byte("gateA\ntun0\neth0\n250\n"), 0600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	overlay, err := LoadDebugOverlay(path)
	if err != nil {
		t.Fatalf("LoadDebugOverlay: %v", err)
	}
	if overlay.LogLevel != "" || overlay.MetricsEnabled {
		t.Fatalf("expected zero-value overlay, got %+v", overlay)
	}
}

func TestLoadDebugOverlayParsesYAML(t *testing.T) {
	dir := t.TempDir()
	confPath := filepath.Join(dir, "arg.conf")
	if err := os.WriteFile(confPath, []byte("gateA\ntun0\neth0\n250\n"), 0600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	overlayPath := confPath + ".debug.yaml"
	yamlContent := "log_level: debug\nmetrics_listen: \":9090\"\nmetrics_enabled: true\n"
	if err := os.WriteFile(overlayPath, []byte(yamlContent), 0600); err != nil {
		t.Fatalf("write overlay: %v", err)
	}

	overlay, err := LoadDebugOverlay(confPath)
	if err != nil {
		t.Fatalf("LoadDebugOverlay: %v", err)
	}
	if overlay.LogLevel != "debug" || overlay.MetricsListen != ":9090" || !overlay.MetricsEnabled {
		t.Fatalf("unexpected overlay: %+v", overlay)
	}
}
