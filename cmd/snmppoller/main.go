// Command snmppoller polls SNMP agents on a schedule, keeps their latest
// values in memory, optionally persists every sample to PostgreSQL and
// serves both over HTTP.
package main

func main() {
	Execute()
}
