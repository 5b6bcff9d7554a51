package schema

import "fmt"

// Fee ledger key layout
// fl:s:<session>         session header
// fl:e:<session>:<entry> one reconciled receipt, entry ids are ULIDs so keys sort by time
// fl:o:<opHash>          entry key of the receipt recorded for an operation
// fl:c:receipts          total receipts ever recorded
const (
	ledgerPrefix = "fl"
)

func SessionKey(session string) []byte {
	return []byte(fmt.Sprintf("%s:s:%s", ledgerPrefix, session))
}

func SessionPrefix() []byte {
	return []byte(fmt.Sprintf("%s:s:", ledgerPrefix))
}

func EntryKey(session, entry string) []byte {
	return []byte(fmt.Sprintf("%s:e:%s:%s", ledgerPrefix, session, entry))
}

func EntryPrefix(session string) []byte {
	return []byte(fmt.Sprintf("%s:e:%s:", ledgerPrefix, session))
}

func OpIndexKey(opHash string) []byte {
	return []byte(fmt.Sprintf("%s:o:%s", ledgerPrefix, opHash))
}

func ReceiptCounterKey() []byte {
	return []byte(fmt.Sprintf("%s:c:receipts", ledgerPrefix))
}
