// Package discovery resolves provider locations published in DNS.
//
// Every TXT record of a domain describes one provider, either as a bare
// location URI or as space separated key=value pairs:
//
//	storage.example.com. 300 IN TXT "location=s3://bucket/prefix?region=eu-west-1 priority=10"
//	storage.example.com. 300 IN TXT "file:///var/lib/multi-storage"
//
// The resolved locations are turned into providers by storage.ProviderFactory.
package discovery
