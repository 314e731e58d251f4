package client

import "github.com/prudhvinik1/boardsync/internal/protocol"

func (c *Client) EmitItemAdded(boardID, collectionID string, item protocol.Entity) error {
	return c.emitAdded(protocol.KindItem, boardID, collectionID, item)
}

func (c *Client) EmitItemUpdated(boardID, collectionID, itemID string, fields map[string]any) error {
	return c.emitUpdated(protocol.KindItem, boardID, collectionID, itemID, fields)
}

func (c *Client) EmitItemDeleted(boardID, collectionID, itemID string) error {
	return c.emitDeleted(protocol.KindItem, boardID, collectionID, itemID)
}

func (c *Client) EmitLinkAdded(boardID, collectionID string, link protocol.Entity) error {
	return c.emitAdded(protocol.KindLink, boardID, collectionID, link)
}

func (c *Client) EmitLinkUpdated(boardID, collectionID, linkID string, fields map[string]any) error {
	return c.emitUpdated(protocol.KindLink, boardID, collectionID, linkID, fields)
}

func (c *Client) EmitLinkDeleted(boardID, collectionID, linkID string) error {
	return c.emitDeleted(protocol.KindLink, boardID, collectionID, linkID)
}

func (c *Client) EmitCollectionAdded(boardID string, collection protocol.Entity) error {
	return c.emitAdded(protocol.KindCollection, boardID, collection.ID(), collection)
}

func (c *Client) EmitCollectionUpdated(boardID, collectionID string, fields map[string]any) error {
	return c.emitUpdated(protocol.KindCollection, boardID, collectionID, collectionID, fields)
}

func (c *Client) EmitCollectionDeleted(boardID, collectionID string) error {
	return c.emitDeleted(protocol.KindCollection, boardID, collectionID, collectionID)
}

func (c *Client) EmitBoardAdded(board protocol.Entity) error {
	return c.emitAdded(protocol.KindBoard, board.ID(), "", board)
}

func (c *Client) EmitBoardUpdated(boardID string, fields map[string]any) error {
	return c.emitUpdated(protocol.KindBoard, boardID, "", boardID, fields)
}

func (c *Client) EmitBoardDeleted(boardID string) error {
	return c.emitDeleted(protocol.KindBoard, boardID, "", boardID)
}

func (c *Client) emitAdded(kind protocol.Kind, boardID, collectionID string, entity protocol.Entity) error {
	return c.Emit(protocol.MutationEvent{
		Kind:         kind,
		Op:           protocol.OpAdded,
		BoardID:      boardID,
		CollectionID: collectionID,
		EntityID:     entity.ID(),
		Entity:       entity,
	})
}

func (c *Client) emitUpdated(kind protocol.Kind, boardID, collectionID, id string, fields map[string]any) error {
	return c.Emit(protocol.MutationEvent{
		Kind:         kind,
		Op:           protocol.OpUpdated,
		BoardID:      boardID,
		CollectionID: collectionID,
		EntityID:     id,
		Fields:       fields,
	})
}

func (c *Client) emitDeleted(kind protocol.Kind, boardID, collectionID, id string) error {
	return c.Emit(protocol.MutationEvent{
		Kind:         kind,
		Op:           protocol.OpDeleted,
		BoardID:      boardID,
		CollectionID: collectionID,
		EntityID:     id,
	})
}
