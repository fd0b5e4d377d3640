// Package extract turns cached netkeiba markup into crawler records.
//
// Every function works on a parsed goquery document and never touches the
// network or the cache. Extraction is lenient: missing blocks yield nil fields,
// empty slices or padded payouts. Only text that is present but fails its
// parsing rule is reported, as an *ExtractionError.
package extract
