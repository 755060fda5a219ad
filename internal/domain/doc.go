// Package domain models ARSO automatic weather station (AMS) feed endpoints
// and the snapshots collected from them.
//
// # Data Source
//
// The Slovenian Environment Agency (ARSO) publishes observation feeds for its
// automatic stations at https://meteo.arso.gov.si/met/sl/service/. The service
// page does not list the feeds itself: it embeds an iframe whose document holds
// several "meteoSI-table" tables, the third of which lists one station per row.
//
// # Feed URLs
//
// Every station has two XML feeds that share a station identifier:
//
//	.../observationAms_<id>_latest.xml   current observation (linked from the table)
//	.../observationAms_<id>_history.xml  rolling history (derived, never linked)
//
// The identifier is the text between "observationAms_" and the variant suffix,
// e.g. "LJUBL-ANA_BEZIGRAD". It is used verbatim: no trimming, no case folding.
// See [ExtractIdentifier] and [BuildHistoryURL].
//
// # Snapshot Files
//
// Each fetched history feed is stored as
//
//	<YYYY>_<MM>_<DD>_<HH>_<MM>_<id>.xml
//
// using the UTC fetch time at minute resolution. Two fetches of the same
// station within one minute map to the same name and the later one overwrites
// the earlier. See [SnapshotFilename].
package domain
