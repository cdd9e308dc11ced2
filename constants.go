package burrow

// MoveFlags select the direction of a cursor move and modify how duplicate
// keys are traversed.
type MoveFlags uint32

const (
	// CursorFirst positions the cursor at the first key in the tree
	CursorFirst MoveFlags = 0x0001

	// CursorLast positions the cursor at the last key in the tree
	CursorLast MoveFlags = 0x0002

	// CursorNext advances the cursor to the next duplicate or key
	CursorNext MoveFlags = 0x0004

	// CursorPrevious steps the cursor back to the previous duplicate or key
	CursorPrevious MoveFlags = 0x0008

	// SkipDuplicates treats each key as a single logical position,
	// ignoring its duplicate chain
	SkipDuplicates MoveFlags = 0x0010

	// OnlyDuplicates restricts stepping to the current key's duplicate
	// chain; the cursor never crosses to another key
	OnlyDuplicates MoveFlags = 0x0020
)

// InsertFlags modify cursor inserts.
type InsertFlags uint32

const (
	// Overwrite replaces the record if the key already exists
	Overwrite InsertFlags = 0x0001

	// Duplicate appends the record to the key's duplicate chain
	Duplicate InsertFlags = 0x0002
)

// uncoupleFlags modify how a coupled cursor is uncoupled.
type uncoupleFlags uint32

const (
	// uncoupleNoRemove leaves the cursor on the page's cursor list; used
	// by the bulk uncouple, which drops the whole list in one step
	uncoupleNoRemove uncoupleFlags = 0x0001
)

// KeyFlags describe how a key entry's record is stored. They also appear on
// duplicate table entries.
type KeyFlags uint32

const (
	// KeyBlobSizeTiny indicates the record is packed into the rid with
	// its length in the rid's high byte
	KeyBlobSizeTiny KeyFlags = 0x0001

	// KeyBlobSizeSmall indicates the record is exactly one machine word
	// and packed into the rid
	KeyBlobSizeSmall KeyFlags = 0x0002

	// KeyBlobSizeEmpty indicates the record is empty
	KeyBlobSizeEmpty KeyFlags = 0x0004

	// KeyHasDuplicates indicates the key's records live in an out-of-line
	// duplicate table addressed by the rid
	KeyHasDuplicates KeyFlags = 0x0010
)

// keyBlobSizeMask masks off the record-size packing flags.
const keyBlobSizeMask = KeyBlobSizeTiny | KeyBlobSizeSmall | KeyBlobSizeEmpty

// Pager defaults
const (
	// DefaultCacheSize is the default number of resident pages
	DefaultCacheSize = 64

	// DefaultMaxKeysPerPage is the default leaf/branch fan-out of the
	// reference backend
	DefaultMaxKeysPerPage = 16
)

// invalidPgno represents an invalid/absent page number
const invalidPgno pgno = 0
