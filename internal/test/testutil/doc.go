/*
Package testutil provides test doubles and helpers for the exporter packages.

# Fake fail2ban daemon

FakeDaemon listens on a tcp port or a unix socket and speaks the control
socket protocol. The handler receives each decoded command and returns a
status code and payload; JailStatus and ServerStatus build the payloads the
real daemon sends.

	daemon := testutil.NewFakeDaemon(t, "unix", func(cmd []any) (int, any) {
	    return 0, testutil.ServerStatus("sshd")
	})
	c, err := client.New(daemon.URI())

DropNext and SplitResponses simulate hung up connections and responses
arriving in small pieces.

# Metrics and logging

TestMetrics serves a private registry for scrape assertions. TestLogger
captures logrus output and entries for RequireEntry style checks.
*/
package testutil
